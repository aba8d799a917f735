package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ganarchy/GAnarchy/internal/store"
)

// NewInitDBCommand creates the initdb command.
func NewInitDBCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create or upgrade the state database",
		Long: `Create the state database in the data directory, applying the
schema if it does not exist yet. Safe to run repeatedly.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(rootOpts.DatabasePath())
			if err != nil {
				return WrapExitError(ExitCommandError, "initialize database", err)
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database ready: %s\n", rootOpts.DatabasePath())
			return nil
		},
	}
}

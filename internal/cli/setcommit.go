package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ganarchy/GAnarchy/internal/model"
	"github.com/ganarchy/GAnarchy/internal/store"
)

// NewSetCommitCommand creates the set-commit command.
func NewSetCommitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-commit <commit>",
		Short: "Set the instance's default project commit",
		Long: `Record the project commit hash that repo subcommands use when no
--project flag is given. The hash is the full hex commit id whose message
carries the project identity.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			commit, err := model.ParseProjectCommit(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid commit", err)
			}
			st, err := store.Open(rootOpts.DatabasePath())
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer st.Close()
			if err := st.SetProjectCommit(cmd.Context(), string(commit)); err != nil {
				return WrapExitError(ExitFailure, "set project commit", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "project commit set: %s\n", commit)
			return nil
		},
	}
}

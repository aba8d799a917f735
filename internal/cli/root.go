// Package cli wires the GAnarchy commands: database management, tracking
// entry management, and the sync run itself.
package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	DataDir string
	Config  string

	Logger zerolog.Logger
}

// DatabasePath is the state database location inside the data directory.
func (o *RootOptions) DatabasePath() string {
	return filepath.Join(o.DataDir, "ganarchy.db")
}

// CachePath is the shared git object cache inside the data directory.
func (o *RootOptions) CachePath() string {
	return filepath.Join(o.DataDir, "cache.git")
}

// ConfigPath resolves the config file: the --config flag, or config.toml
// in the data directory.
func (o *RootOptions) ConfigPath() string {
	if o.Config != "" {
		return o.Config
	}
	return filepath.Join(o.DataDir, "config.toml")
}

// NewRootCommand creates the root command for the ganarchy CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ganarchy",
		Short: "GAnarchy - a decentralized project hub",
		Long: `GAnarchy aggregates forks of a project identified by a shared
commit hash, synchronizes their branch tips into a local cache, and
federates tracking lists across instances.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if opts.Verbose {
				level = zerolog.DebugLevel
			}
			writer := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}
			opts.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()

			if opts.DataDir != "." {
				if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
					return WrapExitError(ExitCommandError, "create data directory", err)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", ".", "directory for the database and git cache")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default <data-dir>/config.toml)")

	cmd.AddCommand(NewInitDBCommand(opts))
	cmd.AddCommand(NewSetCommitCommand(opts))
	cmd.AddCommand(NewRepoCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCronTargetCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

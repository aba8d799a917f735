package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ganarchy/GAnarchy/internal/model"
	"github.com/ganarchy/GAnarchy/internal/store"
)

// RepoOptions holds flags for the repo subcommands.
type RepoOptions struct {
	*RootOptions
	Project string
	Branch  string
	Pinned  bool
}

// NewRepoCommand creates the repo command group.
func NewRepoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage tracked fork repositories",
	}
	cmd.AddCommand(newRepoAddCommand(rootOpts))
	cmd.AddCommand(newRepoEnableCommand(rootOpts))
	cmd.AddCommand(newRepoDisableCommand(rootOpts))
	return cmd
}

func newRepoAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RepoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Track a fork repository",
		Long: `Add a tracking entry for a fork. Without --project the instance's
default project commit (see set-commit) is used. Without --branch the
remote's default branch is tracked.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoAdd(cmd.Context(), cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Project, "project", "", "project commit hash (default: instance project commit)")
	cmd.Flags().StringVar(&opts.Branch, "branch", "", "branch to track (default: remote HEAD)")
	cmd.Flags().BoolVar(&opts.Pinned, "pinned", false, "always list this fork, even when stale")

	return cmd
}

func runRepoAdd(ctx context.Context, cmd *cobra.Command, opts *RepoOptions, rawURL string) error {
	url, err := model.NormalizeRepoURL(rawURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid repository url", err)
	}

	st, err := store.Open(opts.DatabasePath())
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	rawProject := opts.Project
	if rawProject == "" {
		rawProject, err = st.ProjectCommit(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "read project commit", err)
		}
		if rawProject == "" {
			return NewExitError(ExitCommandError, "no --project given and no instance project commit set (run set-commit first)")
		}
	}
	project, err := model.ParseProjectCommit(rawProject)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid project commit", err)
	}

	entry := model.TrackingEntry{
		Key: model.EntryKey{
			Project: project,
			URL:     url,
			Branch:  model.NormalizeBranch(opts.Branch),
		},
		Active:   true,
		Federate: true,
		Pinned:   opts.Pinned,
		Origin:   model.OriginLocal,
	}
	if err := st.UpsertEntry(ctx, entry); err != nil {
		return WrapExitError(ExitFailure, "add repository", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tracking %s\n", entry.Key)
	return nil
}

func newRepoEnableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "enable <url>",
		Short:         "Re-enable a disabled fork",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoSetActive(cmd.Context(), cmd, rootOpts, args[0], true)
		},
	}
}

func newRepoDisableCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <url>",
		Short: "Disable a fork without losing its history",
		Long: `Soft-disable every tracking entry for the URL. The entry and its
sync history stay in the database; it is skipped by sync runs and omitted
from federation export until enabled again.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoSetActive(cmd.Context(), cmd, rootOpts, args[0], false)
		},
	}
}

func runRepoSetActive(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, rawURL string, active bool) error {
	url, err := model.NormalizeRepoURL(rawURL)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid repository url", err)
	}
	st, err := store.Open(rootOpts.DatabasePath())
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	n, err := st.SetEntryActive(ctx, url, active)
	if err != nil {
		return WrapExitError(ExitFailure, "update entries", err)
	}
	if n == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no tracking entries for %s", url))
	}
	verb := "disabled"
	if active {
		verb = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d entries for %s\n", verb, n, url)
	return nil
}

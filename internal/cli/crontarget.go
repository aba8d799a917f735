package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ganarchy/GAnarchy/internal/model"
	"github.com/ganarchy/GAnarchy/internal/store"
	"github.com/ganarchy/GAnarchy/internal/syncer"
)

// NewCronTargetCommand creates the cron-target command.
func NewCronTargetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cron-target <target>",
		Short: "Run one piece of a cron-driven sync",
		Long: `Run a single target, for crontabs that split the work:

  config        merge federation sources into the tracked entries
  project-list  print the tracked project commits, one per line
  <commit>      synchronize only the given project's entries

Example crontab:
  0 * * * *  ganarchy cron-target config
  5 * * * *  ganarchy cron-target project-list | xargs -n1 ganarchy cron-target`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			switch args[0] {
			case "config":
				return runCronConfig(ctx, cmd, rootOpts)
			case "project-list":
				return runCronProjectList(ctx, cmd, rootOpts)
			default:
				return runCronProject(ctx, cmd, rootOpts, args[0])
			}
		},
	}
}

func runCronConfig(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions) error {
	env, err := openEnv(rootOpts)
	if err != nil {
		return err
	}
	defer env.Close()
	if err := mergeSources(ctx, env); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "federation sources merged")
	return nil
}

func runCronProjectList(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions) error {
	st, err := store.Open(rootOpts.DatabasePath())
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	snap, err := st.Snapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "read snapshot", err)
	}
	for _, project := range projectList(snap) {
		fmt.Fprintln(cmd.OutOrStdout(), project)
	}
	return nil
}

// projectList returns the distinct project commits with at least one
// active entry, sorted for stable cron fan-out.
func projectList(snap *store.Snapshot) []model.ProjectCommit {
	seen := map[model.ProjectCommit]bool{}
	var out []model.ProjectCommit
	for _, e := range snap.ActiveEntries() {
		if !seen[e.Key.Project] {
			seen[e.Key.Project] = true
			out = append(out, e.Key.Project)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func runCronProject(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, rawCommit string) error {
	project, err := model.ParseProjectCommit(rawCommit)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid cron target", err)
	}

	env, err := openEnv(rootOpts)
	if err != nil {
		return err
	}
	defer env.Close()

	snap, err := env.Store.Snapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "read snapshot", err)
	}

	// Narrow the snapshot to the one project; everything else is
	// untouched by the resulting batch.
	narrowed := &store.Snapshot{Projects: snap.Projects, Sources: snap.Sources}
	for _, e := range snap.Entries {
		if e.Key.Project == project {
			narrowed.Entries = append(narrowed.Entries, e)
		}
	}
	if len(narrowed.Entries) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no tracking entries for project %s", project))
	}

	s := syncer.New(env.Cache, env.Store, env.Log, syncer.Options{
		Workers:      env.Config.Workers,
		DepthLimit:   env.Config.DepthLimit,
		EntryTimeout: env.Config.EntryTimeout,
		RunTimeout:   env.Config.RunTimeout,
	})
	report, err := s.SyncAll(ctx, narrowed)
	if err != nil {
		return WrapExitError(ExitFailure, "sync", err)
	}
	for _, entry := range report.Entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", entry.State, entry.Project, entry.URL, entry.Branch)
	}
	return nil
}

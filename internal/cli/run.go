package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ganarchy/GAnarchy/internal/config"
	"github.com/ganarchy/GAnarchy/internal/federation"
	"github.com/ganarchy/GAnarchy/internal/model"
	"github.com/ganarchy/GAnarchy/internal/store"
	"github.com/ganarchy/GAnarchy/internal/syncer"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <outdir>",
		Short: "Run a full synchronization pass",
		Long: `Run one complete pass: merge federation sources into the tracked
entries, fetch and walk every active fork, and write the federation
export document and run report into the output directory.

Per-entry failures are recorded in the database and do not fail the run.

Example:
  ganarchy --data-dir /var/lib/ganarchy run /srv/ganarchy/out`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runSync(ctx, cmd, rootOpts, args[0])
		},
	}
}

func runSync(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, outDir string) error {
	env, err := openEnv(rootOpts)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := mergeSources(ctx, env); err != nil {
		return err
	}

	snap, err := env.Store.Snapshot(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "read snapshot", err)
	}

	s := syncer.New(env.Cache, env.Store, env.Log, syncer.Options{
		Workers:      env.Config.Workers,
		DepthLimit:   env.Config.DepthLimit,
		EntryTimeout: env.Config.EntryTimeout,
		RunTimeout:   env.Config.RunTimeout,
	})
	report, err := s.SyncAll(ctx, snap)
	if err != nil {
		return WrapExitError(ExitFailure, "sync", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "create output directory", err)
	}
	if err := writeExport(ctx, env, filepath.Join(outDir, "repo-list.toml")); err != nil {
		return err
	}
	raw, err := report.Marshal()
	if err != nil {
		return WrapExitError(ExitFailure, "render report", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "report.yaml"), raw, 0o644); err != nil {
		return WrapExitError(ExitFailure, "write report", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d applied, %d unknown, %d failed, %d not attempted\n",
		report.RunID, report.Applied, report.Unknown, report.Failed, report.NotAttempted)
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// mergeSources applies the configured entries, merged with every active
// federation source, plus the source fetch outcomes, in one batch.
//
// The merged set is authoritative for remote-origin entries: an entry its
// source stopped listing, marked inactive, or that lost its source
// entirely is soft-disabled here, so it neither syncs nor reappears in
// the export.
func mergeSources(ctx context.Context, env *Env) error {
	merged := env.Config.Entries
	var states []model.SourceState
	if len(env.Config.Sources) > 0 {
		merger := federation.NewMerger(federation.NewFetcher(nil, env.Log), env.Log)
		merged, states = merger.Merge(ctx, env.Config.Sources, env.Config.Entries)
	}

	retracted, err := retractedEntries(ctx, env.Store, merged, states)
	if err != nil {
		return WrapExitError(ExitFailure, "reconcile tracked entries", err)
	}

	batch := &store.Batch{Tracking: merged, Activations: retracted, Sources: states}
	if batch.Empty() {
		return nil
	}
	if err := env.Store.ApplyBatch(ctx, batch); err != nil {
		return WrapExitError(ExitFailure, "apply federation merge", err)
	}
	return nil
}

// retractedEntries returns deactivations for every active remote-origin
// entry in the store that the merged set no longer contains. Entries whose
// origin source failed to fetch this pass are exempt: a transient fetch
// failure must not untrack anything.
func retractedEntries(ctx context.Context, st *store.Store, merged []model.TrackingEntry, states []model.SourceState) ([]store.Activation, error) {
	snap, err := st.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	kept := make(map[model.EntryKey]bool, len(merged))
	for _, e := range merged {
		kept[e.Key] = true
	}
	failed := map[model.Origin]bool{}
	for _, s := range states {
		if s.Active && s.LastError != "" {
			failed[model.Origin(s.URL)] = true
		}
	}

	var out []store.Activation
	for _, e := range snap.Entries {
		if !e.Active || e.Origin.IsLocal() || kept[e.Key] || failed[e.Origin] {
			continue
		}
		out = append(out, store.Activation{Key: e.Key, Active: false})
	}
	return out, nil
}

// writeExport renders the federation export document from current store
// state and writes it to path.
func writeExport(ctx context.Context, env *Env, path string) error {
	raw, err := renderExport(ctx, env)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return WrapExitError(ExitFailure, "write export document", err)
	}
	return nil
}

func renderExport(ctx context.Context, env *Env) ([]byte, error) {
	snap, err := env.Store.Snapshot(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "read snapshot", err)
	}
	entries := make([]model.TrackingEntry, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, e.TrackingEntry)
	}
	raw, err := config.Export(env.Config.BaseURL, env.Config.Title, entries)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "render export document", err)
	}
	return raw, nil
}

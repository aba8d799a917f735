// Package syncer runs one full synchronization pass: it fetches every
// active tracking entry's branch tip, checks that the owning project's
// commit is reachable from it, and commits all results to the store in a
// single atomic batch.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"

	"github.com/ganarchy/GAnarchy/internal/gitcache"
	"github.com/ganarchy/GAnarchy/internal/model"
	"github.com/ganarchy/GAnarchy/internal/project"
	"github.com/ganarchy/GAnarchy/internal/store"
)

// GitCache is the slice of the git layer the syncer needs. *gitcache.Cache
// implements it; tests substitute a scripted fake.
type GitCache interface {
	FetchBranch(ctx context.Context, url model.RepoURL, branch string) (plumbing.Hash, error)
	Walk(start, target plumbing.Hash, depthLimit int) (model.WalkResult, error)
	CommitMessage(hash plumbing.Hash) (string, error)
	CountNewCommits(prev, tip plumbing.Hash) int
}

var _ GitCache = (*gitcache.Cache)(nil)

// Options bound the sync run.
type Options struct {
	// Workers is the size of the worker pool. Kept small so a run does
	// not hammer remote hosts.
	Workers int
	// DepthLimit bounds each ancestry walk.
	DepthLimit int
	// EntryTimeout covers one entry's fetch plus walk.
	EntryTimeout time.Duration
	// RunTimeout is the whole-run deadline. Entries not started when it
	// passes are reported as not attempted.
	RunTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.DepthLimit <= 0 {
		o.DepthLimit = gitcache.DefaultDepthLimit
	}
	if o.EntryTimeout <= 0 {
		o.EntryTimeout = time.Minute
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 30 * time.Minute
	}
}

// Syncer orchestrates sync runs.
type Syncer struct {
	git   GitCache
	store *store.Store
	log   zerolog.Logger
	opts  Options
	now   func() time.Time
}

// New builds a Syncer.
func New(git GitCache, st *store.Store, log zerolog.Logger, opts Options) *Syncer {
	opts.applyDefaults()
	return &Syncer{git: git, store: st, log: log, opts: opts, now: time.Now}
}

// outcome is one worker's verdict on one entry, accumulated locally until
// the end-of-run batch. Workers never touch the store.
type outcome struct {
	entry  store.Entry
	result store.EntryResult
	state  EntryState
}

// SyncAll processes every active entry in the snapshot and applies all
// results in one store batch. Per-entry failures are data, not errors; the
// returned error is only non-nil for structural problems (store apply).
func (s *Syncer) SyncAll(ctx context.Context, snap *store.Snapshot) (*Report, error) {
	started := s.now().UTC()
	report := NewReport(started)

	entries := snap.ActiveEntries()
	if len(entries) == 0 {
		report.finish(s.now().UTC())
		return report, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	jobs := make(chan store.Entry)
	outcomes := make(chan outcome, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < s.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				outcomes <- s.processEntry(runCtx, entry)
			}
		}()
	}

	// Feed jobs until the run deadline; whatever is left is recorded as
	// not attempted so the run always terminates.
	notAttempted := make([]store.Entry, 0)
feed:
	for i, entry := range entries {
		select {
		case jobs <- entry:
		case <-runCtx.Done():
			notAttempted = entries[i:]
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	batch := &store.Batch{}
	for out := range outcomes {
		s.recordOutcome(batch, report, out)
	}
	for _, entry := range notAttempted {
		res := store.EntryResult{
			Key:    entry.Key,
			Kind:   store.ResultFailed,
			Status: model.EntryStatus{Err: "not attempted: run deadline exceeded"},
		}
		s.recordOutcome(batch, report, outcome{entry: entry, result: res, state: StateNotAttempted})
	}

	s.resolveProjects(batch, snap, entries)

	// The one write of the whole run. Readers see either the previous
	// state or the complete new one.
	if err := s.store.ApplyBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}

	report.finish(s.now().UTC())
	s.log.Info().
		Str("run", report.RunID).
		Int("applied", report.Applied).
		Int("unknown", report.Unknown).
		Int("failed", report.Failed).
		Int("not_attempted", report.NotAttempted).
		Dur("elapsed", report.Elapsed).
		Msg("sync run finished")
	return report, nil
}

// projectHash converts a project commit to a git object hash. The object
// cache speaks SHA-1; a SHA-256 commit has no 20-byte form and must never
// be truncated into one, since the walk would then "prove" absence against
// a hash that names nothing.
func projectHash(commit model.ProjectCommit) (plumbing.Hash, bool) {
	if len(commit) != 2*len(plumbing.ZeroHash) {
		return plumbing.ZeroHash, false
	}
	return plumbing.NewHash(string(commit)), true
}

// processEntry runs the per-entry state machine:
// Pending -> Fetching -> Walked -> Applied, or Failed on transport error.
func (s *Syncer) processEntry(ctx context.Context, entry store.Entry) outcome {
	log := s.log.With().Stringer("entry", entry.Key).Logger()
	entryCtx, cancel := context.WithTimeout(ctx, s.opts.EntryTimeout)
	defer cancel()

	target, ok := projectHash(entry.Key.Project)
	if !ok {
		log.Warn().Msg("sha-256 project commit, ancestry check unsupported")
		return outcome{entry: entry, state: StateFailed, result: store.EntryResult{
			Key:    entry.Key,
			Kind:   store.ResultFailed,
			Status: model.EntryStatus{Err: "sha-256 project commits are not supported by the object cache"},
		}}
	}

	tip, err := s.git.FetchBranch(entryCtx, entry.Key.URL, entry.Key.Branch)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed")
		return outcome{entry: entry, state: StateFailed, result: store.EntryResult{
			Key:    entry.Key,
			Kind:   store.ResultFailed,
			Status: model.EntryStatus{Err: err.Error()},
		}}
	}

	walked, err := s.git.Walk(tip, target, s.opts.DepthLimit)
	if err != nil {
		log.Warn().Err(err).Msg("walk failed")
		return outcome{entry: entry, state: StateFailed, result: store.EntryResult{
			Key:    entry.Key,
			Kind:   store.ResultFailed,
			Status: model.EntryStatus{Err: err.Error()},
		}}
	}

	switch walked.Status {
	case model.WalkUnknown:
		// Absence is unproven: keep the previous result, ask for a
		// deeper walk next run.
		return outcome{entry: entry, state: StateUnknown, result: store.EntryResult{
			Key:    entry.Key,
			Kind:   store.ResultUnknown,
			Status: model.EntryStatus{Err: "ancestry unknown: depth limit reached"},
		}}
	default:
		prev := plumbing.ZeroHash
		if entry.Status.Head != "" {
			prev = plumbing.NewHash(entry.Status.Head)
		}
		status := model.EntryStatus{
			Head:     tip.String(),
			Walk:     walked.Status,
			Distance: walked.Distance,
			SyncedAt: s.now().UTC(),
		}
		if walked.Status == model.WalkFound {
			status.NewCommits = s.git.CountNewCommits(prev, tip)
		}
		log.Debug().Stringer("status", walked.Status).Int("distance", walked.Distance).Msg("entry synced")
		return outcome{entry: entry, state: StateApplied, result: store.EntryResult{
			Key:    entry.Key,
			Kind:   store.ResultApplied,
			Status: status,
		}}
	}
}

// recordOutcome folds one outcome into the pending batch and the report.
func (s *Syncer) recordOutcome(batch *store.Batch, report *Report, out outcome) {
	batch.Results = append(batch.Results, out.result)
	if out.state == StateApplied && out.result.Status.Walk == model.WalkFound {
		batch.History = append(batch.History, store.HistoryRow{
			Key:        out.result.Key,
			Head:       out.result.Status.Head,
			NewCommits: out.result.Status.NewCommits,
		})
	}
	report.add(out.entry.Key, out.state, out.result.Status)
}

// resolveProjects refreshes cached project metadata. Resolution is pure,
// so a project that already resolved as valid is never re-resolved; an
// unresolved or invalid one is retried because its commit may have just
// arrived in the cache.
func (s *Syncer) resolveProjects(batch *store.Batch, snap *store.Snapshot, entries []store.Entry) {
	seen := map[model.ProjectCommit]bool{}
	for _, entry := range entries {
		commit := entry.Key.Project
		if seen[commit] {
			continue
		}
		seen[commit] = true
		if meta, ok := snap.Projects[commit]; ok && meta.Valid {
			continue
		}
		hash, ok := projectHash(commit)
		if !ok {
			// Indeterminate, not invalid: persist nothing.
			s.log.Warn().Stringer("project", commit).Msg("sha-256 project commit, resolution skipped")
			continue
		}

		meta := model.ProjectMeta{Commit: commit, ResolvedAt: s.now().UTC()}
		message, err := s.git.CommitMessage(hash)
		switch {
		case errors.Is(err, gitcache.ErrMissingCommit):
			s.log.Warn().Stringer("project", commit).Msg("project commit not found in any fork")
		case err != nil:
			s.log.Warn().Stringer("project", commit).Err(err).Msg("project commit unreadable")
		default:
			meta.Message = message
			if id, ok := project.Resolve(message); ok {
				meta.Title = id.Title
				meta.Description = id.Description
				meta.Valid = true
			} else {
				s.log.Warn().Stringer("project", commit).Msg("project commit message is malformed")
			}
		}
		batch.Projects = append(batch.Projects, meta)
	}
	sort.Slice(batch.Projects, func(i, j int) bool {
		return batch.Projects[i].Commit < batch.Projects[j].Commit
	})
}

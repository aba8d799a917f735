package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// ApplyBatch commits every mutation in the batch inside one transaction.
// Either all of it becomes visible or none of it does. This is the only
// write path for sync results and federation merges.
func (s *Store) ApplyBatch(ctx context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range batch.Tracking {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tracking (project, url, branch, active, federate, pinned, origin)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project, url, branch) DO UPDATE SET
				active = excluded.active,
				federate = excluded.federate,
				pinned = excluded.pinned,
				origin = excluded.origin
		`, string(t.Key.Project), string(t.Key.URL), t.Key.Branch,
			boolInt(t.Active), boolInt(t.Federate), boolInt(t.Pinned), string(t.Origin))
		if err != nil {
			return fmt.Errorf("apply batch: upsert tracking %s: %w", t.Key, err)
		}
	}

	for _, a := range batch.Activations {
		_, err := tx.ExecContext(ctx, `
			UPDATE tracking SET active = ?
			WHERE project = ? AND url = ? AND branch = ?
		`, boolInt(a.Active), string(a.Key.Project), string(a.Key.URL), a.Key.Branch)
		if err != nil {
			return fmt.Errorf("apply batch: activation %s: %w", a.Key, err)
		}
	}

	for _, r := range batch.Results {
		if err := applyResult(ctx, tx, r); err != nil {
			return err
		}
	}

	for _, p := range batch.Projects {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (commit_hash, title, description, message, valid, resolved_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(commit_hash) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				message = excluded.message,
				valid = excluded.valid,
				resolved_at = excluded.resolved_at
		`, string(p.Commit), p.Title, p.Description, p.Message, boolInt(p.Valid), toEpoch(p.ResolvedAt))
		if err != nil {
			return fmt.Errorf("apply batch: upsert project %s: %w", p.Commit, err)
		}
	}

	for _, src := range batch.Sources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sources (url, active, last_fetched_at, next_fetch_at, last_error)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(url) DO UPDATE SET
				active = excluded.active,
				last_fetched_at = excluded.last_fetched_at,
				next_fetch_at = excluded.next_fetch_at,
				last_error = excluded.last_error
		`, src.URL, boolInt(src.Active), toEpoch(src.LastFetchedAt), toEpoch(src.NextFetchAt), src.LastError)
		if err != nil {
			return fmt.Errorf("apply batch: upsert source %s: %w", src.URL, err)
		}
	}

	for _, h := range batch.History {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO history (project, url, branch, head_commit, new_commits)
			VALUES (?, ?, ?, ?, ?)
		`, string(h.Key.Project), string(h.Key.URL), h.Key.Branch, h.Head, h.NewCommits)
		if err != nil {
			return fmt.Errorf("apply batch: append history %s: %w", h.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply batch: commit: %w", err)
	}
	return nil
}

// applyResult writes a sync outcome. Definite outcomes overwrite the whole
// observed state; unknown and failed outcomes only record the error so the
// previous state stays valid ("stale but valid").
func applyResult(ctx context.Context, tx *sql.Tx, r EntryResult) error {
	var err error
	switch r.Kind {
	case ResultApplied:
		_, err = tx.ExecContext(ctx, `
			UPDATE tracking SET
				head_commit = ?,
				walk_status = ?,
				distance = ?,
				new_commits = ?,
				last_error = '',
				synced_at = ?
			WHERE project = ? AND url = ? AND branch = ?
		`, r.Status.Head, walkStatusString(r.Status.Walk), r.Status.Distance,
			r.Status.NewCommits, toEpoch(r.Status.SyncedAt),
			string(r.Key.Project), string(r.Key.URL), r.Key.Branch)
	case ResultUnknown, ResultFailed:
		_, err = tx.ExecContext(ctx, `
			UPDATE tracking SET last_error = ?
			WHERE project = ? AND url = ? AND branch = ?
		`, r.Status.Err, string(r.Key.Project), string(r.Key.URL), r.Key.Branch)
	default:
		return fmt.Errorf("apply batch: result %s: invalid kind %d", r.Key, r.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply batch: result %s: %w", r.Key, err)
	}
	return nil
}

// UpsertEntry records or updates one tracking entry's desired state.
func (s *Store) UpsertEntry(ctx context.Context, entry model.TrackingEntry) error {
	return s.ApplyBatch(ctx, &Batch{Tracking: []model.TrackingEntry{entry}})
}

// SetEntryActive soft-enables or soft-disables every entry tracking the
// URL. Returns the number of entries touched.
func (s *Store) SetEntryActive(ctx context.Context, url model.RepoURL, active bool) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tracking SET active = ? WHERE url = ?`,
		boolInt(active), string(url))
	if err != nil {
		return 0, fmt.Errorf("set active %s: %w", url, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set active %s: %w", url, err)
	}
	return int(n), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

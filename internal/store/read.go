package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// Snapshot reads the full store state inside one read transaction, so the
// result is consistent even while a batch is being applied elsewhere.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	snap := &Snapshot{Projects: map[model.ProjectCommit]model.ProjectMeta{}}

	if err := s.readProjects(ctx, tx, snap); err != nil {
		return nil, err
	}
	if err := s.readEntries(ctx, tx, snap); err != nil {
		return nil, err
	}
	if err := s.readSources(ctx, tx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) readProjects(ctx context.Context, tx *sql.Tx, snap *Snapshot) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT commit_hash, title, description, message, valid, resolved_at
		FROM projects
	`)
	if err != nil {
		return fmt.Errorf("snapshot: projects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			meta     model.ProjectMeta
			commit   string
			valid    int
			resolved int64
		)
		if err := rows.Scan(&commit, &meta.Title, &meta.Description, &meta.Message, &valid, &resolved); err != nil {
			return fmt.Errorf("snapshot: scan project: %w", err)
		}
		meta.Commit = model.ProjectCommit(commit)
		meta.Valid = valid != 0
		meta.ResolvedAt = fromEpoch(resolved)
		snap.Projects[meta.Commit] = meta
	}
	return rows.Err()
}

func (s *Store) readEntries(ctx context.Context, tx *sql.Tx, snap *Snapshot) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT project, url, branch, active, federate, pinned, origin,
		       head_commit, walk_status, distance, new_commits, last_error, synced_at
		FROM tracking
		ORDER BY project, url, branch
	`)
	if err != nil {
		return fmt.Errorf("snapshot: tracking: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                        Entry
			project, url, walk       string
			active, federate, pinned int
			origin                   string
			synced                   int64
		)
		err := rows.Scan(&project, &url, &e.Key.Branch, &active, &federate, &pinned, &origin,
			&e.Status.Head, &walk, &e.Status.Distance, &e.Status.NewCommits, &e.Status.Err, &synced)
		if err != nil {
			return fmt.Errorf("snapshot: scan entry: %w", err)
		}
		e.Key.Project = model.ProjectCommit(project)
		e.Key.URL = model.RepoURL(url)
		e.Active = active != 0
		e.Federate = federate != 0
		e.Pinned = pinned != 0
		e.Origin = model.Origin(origin)
		e.Status.Walk = parseWalkStatus(walk)
		e.Status.SyncedAt = fromEpoch(synced)
		snap.Entries = append(snap.Entries, e)
	}
	return rows.Err()
}

func (s *Store) readSources(ctx context.Context, tx *sql.Tx, snap *Snapshot) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT url, active, last_fetched_at, next_fetch_at, last_error
		FROM sources
		ORDER BY url
	`)
	if err != nil {
		return fmt.Errorf("snapshot: sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			src           model.SourceState
			active        int
			fetched, next int64
		)
		if err := rows.Scan(&src.URL, &active, &fetched, &next, &src.LastError); err != nil {
			return fmt.Errorf("snapshot: scan source: %w", err)
		}
		src.Active = active != 0
		src.LastFetchedAt = fromEpoch(fetched)
		src.NextFetchAt = fromEpoch(next)
		snap.Sources = append(snap.Sources, src)
	}
	return rows.Err()
}

// EntryHistory returns the activity counts for one entry, oldest first.
func (s *Store) EntryHistory(ctx context.Context, key model.EntryKey) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT new_commits FROM history
		WHERE project = ? AND url = ? AND branch = ?
		ORDER BY entry ASC
	`, string(key.Project), string(key.URL), key.Branch)
	if err != nil {
		return nil, fmt.Errorf("entry history: %w", err)
	}
	defer rows.Close()

	var counts []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("entry history: scan: %w", err)
		}
		counts = append(counts, n)
	}
	return counts, rows.Err()
}

func parseWalkStatus(s string) model.WalkStatus {
	switch s {
	case "found":
		return model.WalkFound
	case "not-found":
		return model.WalkNotFound
	case "unknown":
		return model.WalkUnknown
	default:
		return 0
	}
}

func walkStatusString(w model.WalkStatus) string {
	if w == 0 {
		return ""
	}
	return w.String()
}

func fromEpoch(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func toEpoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

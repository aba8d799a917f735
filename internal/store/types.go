package store

import (
	"github.com/ganarchy/GAnarchy/internal/model"
)

// Entry combines the desired half of a tracking entry with its last
// observed sync result.
type Entry struct {
	model.TrackingEntry
	Status model.EntryStatus
}

// Snapshot is a consistent point-in-time view of the whole store.
type Snapshot struct {
	Projects map[model.ProjectCommit]model.ProjectMeta
	Entries  []Entry
	Sources  []model.SourceState
}

// ActiveEntries returns the entries eligible for synchronization.
func (s *Snapshot) ActiveEntries() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}

// ResultKind says how much of an EntryResult may be applied to the store.
type ResultKind int

const (
	// ResultApplied carries a definite walk outcome: every status field
	// is overwritten.
	ResultApplied ResultKind = iota + 1
	// ResultUnknown means the walk budget ran out. Only the error text is
	// recorded; the previous outcome stays untouched.
	ResultUnknown
	// ResultFailed is a transport failure or timeout. Only the error text
	// is recorded; the previous outcome stays untouched.
	ResultFailed
)

func (k ResultKind) String() string {
	switch k {
	case ResultApplied:
		return "applied"
	case ResultUnknown:
		return "unknown"
	case ResultFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// EntryResult is one sync outcome headed for the store.
type EntryResult struct {
	Key    model.EntryKey
	Kind   ResultKind
	Status model.EntryStatus
}

// HistoryRow is one appended activity record.
type HistoryRow struct {
	Key        model.EntryKey
	Head       string
	NewCommits int
}

// Activation flips an entry's active flag without touching anything else.
type Activation struct {
	Key    model.EntryKey
	Active bool
}

// Batch is a set of mutations applied atomically by ApplyBatch. All slices
// may be empty; an empty batch is a no-op.
type Batch struct {
	// Tracking upserts desired state: flags and origin. Existing sync
	// results for the same key are preserved.
	Tracking []model.TrackingEntry
	// Activations soft-enable or soft-disable existing entries.
	Activations []Activation
	// Results updates observed state per the result kind.
	Results []EntryResult
	// Projects upserts cached project metadata.
	Projects []model.ProjectMeta
	// Sources upserts federation source states.
	Sources []model.SourceState
	// History appends activity rows.
	History []HistoryRow
}

// Empty reports whether the batch holds no mutations.
func (b *Batch) Empty() bool {
	return len(b.Tracking) == 0 && len(b.Activations) == 0 && len(b.Results) == 0 &&
		len(b.Projects) == 0 && len(b.Sources) == 0 && len(b.History) == 0
}

package federation

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ganarchy/GAnarchy/internal/config"
	"github.com/ganarchy/GAnarchy/internal/model"
)

// SourceEntries holds the usable entries one source offered.
type SourceEntries struct {
	URL     string
	Entries []model.TrackingEntry
}

// Policy decides which definition of each tracking entry wins when local
// config and several sources overlap. It exists as a seam: the federation
// trust model is the least settled part of the system, so the policy must
// stay swappable without touching the merger.
type Policy func(local []model.TrackingEntry, remote []SourceEntries) []model.TrackingEntry

// SingleWinner is the default policy. For each key, precedence is local
// config first, then the earliest source that defines the key. Flags are
// never combined across origins, so the provenance of every active and
// federate value stays auditable.
func SingleWinner(local []model.TrackingEntry, remote []SourceEntries) []model.TrackingEntry {
	merged := make(map[model.EntryKey]model.TrackingEntry, len(local))
	for _, e := range local {
		if _, dup := merged[e.Key]; dup {
			continue
		}
		merged[e.Key] = e
	}
	for _, src := range remote {
		for _, e := range src.Entries {
			if _, taken := merged[e.Key]; taken {
				continue
			}
			merged[e.Key] = e
		}
	}

	out := make([]model.TrackingEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Branch < b.Branch
	})
	return out
}

// Merger produces the desired tracking set from local config plus remote
// sources.
type Merger struct {
	fetcher *Fetcher
	policy  Policy
	log     zerolog.Logger
	now     func() time.Time
}

// NewMerger builds a Merger with the SingleWinner policy.
func NewMerger(fetcher *Fetcher, log zerolog.Logger) *Merger {
	return &Merger{
		fetcher: fetcher,
		policy:  SingleWinner,
		log:     log,
		now:     time.Now,
	}
}

// WithPolicy replaces the merge policy.
func (m *Merger) WithPolicy(p Policy) *Merger {
	m.policy = p
	return m
}

// Merge fetches every active source in declared order and merges their
// entries with the local ones.
//
// One source failing to fetch or validate is recorded on that source's
// state and skipped; the remaining sources still merge. Inactive sources
// are never fetched at all.
//
// Remote entries cross a trust boundary on the way in: the federate and
// pinned flags are stripped (republishing and ranking are local decisions)
// and entries the source itself marks inactive are not adopted. Absence
// from all sources means not tracked.
func (m *Merger) Merge(ctx context.Context, sources []config.SourceRef, local []model.TrackingEntry) ([]model.TrackingEntry, []model.SourceState) {
	var (
		remote []SourceEntries
		states []model.SourceState
	)
	for _, src := range sources {
		state := model.SourceState{URL: src.URL, Active: src.Active}
		if !src.Active {
			states = append(states, state)
			continue
		}

		now := m.now().UTC()
		doc, refresh, err := m.fetcher.Fetch(ctx, src.URL)
		state.LastFetchedAt = now
		state.NextFetchAt = now.Add(refresh)
		if err != nil {
			state.LastError = err.Error()
			states = append(states, state)
			m.log.Warn().Str("source", src.URL).Err(err).Msg("federation source skipped")
			continue
		}
		states = append(states, state)

		entries, problems := doc.Entries(model.Origin(src.URL), false)
		for _, p := range problems {
			m.log.Warn().Str("source", src.URL).Err(p).Msg("federation entry skipped")
		}
		remote = append(remote, SourceEntries{URL: src.URL, Entries: sanitize(entries)})
	}

	return m.policy(local, remote), states
}

// sanitize applies the trust boundary to remote entries: inactive entries
// are dropped, and the federate and pinned flags are reset to their local
// defaults. Republishing and ranking are this instance's decisions, not
// the source's.
func sanitize(entries []model.TrackingEntry) []model.TrackingEntry {
	out := make([]model.TrackingEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Active {
			continue
		}
		e.Federate = true
		e.Pinned = false
		out = append(out, e)
	}
	return out
}

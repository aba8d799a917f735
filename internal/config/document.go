// Package config parses and validates the documents a GAnarchy instance
// consumes: the local config file and remote repo-list documents. Both use
// the same TOML shape, validated against a CUE schema at the boundary.
//
// Be careful: identical syntax, different trust. A repo-list document must
// never be treated as a config document.
package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/pelletier/go-toml/v2"

	"github.com/ganarchy/GAnarchy/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// Flags are the per-branch tracking options. Active is a pointer because
// it carries no implicit default: the schema rejects documents omitting it.
type Flags struct {
	Active   *bool `toml:"active"`
	Federate *bool `toml:"federate,omitempty"`
	Pinned   *bool `toml:"pinned,omitempty"`
}

// SourceOptions configure one federation source.
type SourceOptions struct {
	Active bool `toml:"active"`
}

// SyncOptions tune the sync engine. Zero values mean "use the default".
type SyncOptions struct {
	Workers      int    `toml:"workers"`
	DepthLimit   int    `toml:"depth_limit"`
	EntryTimeout string `toml:"entry_timeout"`
	RunTimeout   string `toml:"run_timeout"`
}

// Document is the shared wire shape: base_url/title/sync are only
// meaningful in the local config, projects appears in both, and
// repo_list_srcs declares the federation sources to pull from.
type Document struct {
	BaseURL      string                                 `toml:"base_url,omitempty"`
	Title        string                                 `toml:"title,omitempty"`
	RepoListSrcs map[string]SourceOptions               `toml:"repo_list_srcs,omitempty"`
	Projects     map[string]map[string]map[string]Flags `toml:"projects,omitempty"`
	Sync         *SyncOptions                           `toml:"sync,omitempty"`
}

// DecodeDocument validates raw TOML against the embedded CUE schema and
// decodes it into a Document. Schema violations (wrong types, missing
// active flags) are returned as errors before any decoding happens.
func DecodeDocument(raw []byte) (*Document, error) {
	var generic map[string]any
	if err := toml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if generic == nil {
		generic = map[string]any{}
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	unified := schema.Unify(cuectx.Encode(generic))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}

	var doc Document
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Entries extracts tracking entries from the document's projects table.
//
// In strict mode (local config) any malformed commit hash or URL is an
// error. In lenient mode (remote documents) malformed entries are skipped,
// reported in the returned slice of problems, and the rest survive.
func (d *Document) Entries(origin model.Origin, strict bool) ([]model.TrackingEntry, []error) {
	var (
		entries  []model.TrackingEntry
		problems []error
	)
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	for commitRaw, repos := range d.Projects {
		commit, err := model.ParseProjectCommit(commitRaw)
		if err != nil {
			bad("project %q: %v", commitRaw, err)
			continue
		}
		for urlRaw, branches := range repos {
			url, err := model.NormalizeRepoURL(urlRaw)
			if err != nil {
				bad("project %s: %v", commit, err)
				continue
			}
			for branchRaw, flags := range branches {
				if flags.Active == nil {
					// The schema already rejects this; kept as a
					// semantic backstop for hand-built documents.
					bad("entry %s %s %s: active flag missing", commit, url, branchRaw)
					continue
				}
				entry := model.TrackingEntry{
					Key: model.EntryKey{
						Project: commit,
						URL:     url,
						Branch:  model.NormalizeBranch(branchRaw),
					},
					Active:   *flags.Active,
					Federate: flags.Federate == nil || *flags.Federate,
					Pinned:   flags.Pinned != nil && *flags.Pinned,
					Origin:   origin,
				}
				entries = append(entries, entry)
			}
		}
	}

	if strict && len(problems) > 0 {
		return nil, problems
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Key, entries[j].Key
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Branch < b.Branch
	})
	return entries, problems
}

// SourceRef is one declared federation source, in document order.
type SourceRef struct {
	URL    string
	Active bool
}

// Sources returns the declared federation sources ordered as they appear
// in the raw document. TOML tables decode into unordered maps, so the
// declaration order is recovered by scanning raw for repo_list_srcs keys;
// precedence between sources depends on it.
func (d *Document) Sources(raw []byte) []SourceRef {
	refs := make([]SourceRef, 0, len(d.RepoListSrcs))
	for url, opts := range d.RepoListSrcs {
		refs = append(refs, SourceRef{URL: url, Active: opts.Active})
	}
	order := sourceOrder(raw)
	rank := func(url string) int {
		if r, ok := order[url]; ok {
			return r
		}
		return len(order)
	}
	sort.SliceStable(refs, func(i, j int) bool {
		ri, rj := rank(refs[i].URL), rank(refs[j].URL)
		if ri != rj {
			return ri < rj
		}
		return refs[i].URL < refs[j].URL
	})
	return refs
}

// sourceOrder maps each source URL to its declaration rank. Only keys in
// repo_list_srcs positions count: a URL that also appears elsewhere in the
// document, say as a repo URL under projects, must not affect the rank.
// Covers the three TOML spellings: [repo_list_srcs."url"] headers, dotted
// repo_list_srcs."url" assignments, and keys inside a [repo_list_srcs]
// table.
func sourceOrder(raw []byte) map[string]int {
	order := map[string]int{}
	note := func(url string) {
		if _, seen := order[url]; !seen {
			order[url] = len(order)
		}
	}
	inTable := false
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "[repo_list_srcs."):
			inTable = false
			if url, ok := quotedKey(line[len("[repo_list_srcs."):]); ok {
				note(url)
			}
		case strings.HasPrefix(line, "["):
			inTable = strings.TrimRight(strings.TrimPrefix(line, "["), "]") == "repo_list_srcs"
		case strings.HasPrefix(line, "repo_list_srcs."):
			if url, ok := quotedKey(line[len("repo_list_srcs."):]); ok {
				note(url)
			}
		case inTable:
			if url, ok := quotedKey(line); ok {
				note(url)
			}
		}
	}
	return order
}

// quotedKey extracts a leading quoted key from s.
func quotedKey(s string) (string, bool) {
	if len(s) < 2 || (s[0] != '"' && s[0] != '\'') {
		return "", false
	}
	if end := strings.IndexByte(s[1:], s[0]); end >= 0 {
		return s[1 : 1+end], true
	}
	return "", false
}

// Package model holds the domain types shared by the store, the federation
// merger, and the sync engine: project identities, normalized repo URLs,
// tracking entry keys, and sync outcomes.
package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// HeadBranch is the reserved branch name meaning "the remote's default
// branch". It is stored as the empty string internally.
const HeadBranch = "HEAD"

// commitRe accepts full SHA-1 and SHA-256 commit hashes.
var commitRe = regexp.MustCompile(`^[0-9a-fA-F]{40}$|^[0-9a-fA-F]{64}$`)

// ProjectCommit is the hash of the commit that declares a project. It is the
// project's permanent identity: amend the commit and you have a new project.
type ProjectCommit string

// ParseProjectCommit validates a commit hash string.
func ParseProjectCommit(s string) (ProjectCommit, error) {
	if !commitRe.MatchString(s) {
		return "", fmt.Errorf("invalid project commit %q: want 40 or 64 hex chars", s)
	}
	return ProjectCommit(strings.ToLower(s)), nil
}

func (p ProjectCommit) String() string { return string(p) }

// RepoURL is a normalized repository URL: scheme and host lower-cased, path
// preserved as given. Two spellings of the same repo normalize to the same
// RepoURL, which is what makes it usable as an identity.
type RepoURL string

// NormalizeRepoURL parses and normalizes a repository URL.
func NormalizeRepoURL(raw string) (RepoURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid repo url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid repo url %q: scheme and host are required", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return RepoURL(u.String()), nil
}

func (r RepoURL) String() string { return string(r) }

// EntryKey identifies a tracking entry: one branch of one fork of one
// project. Branch is "" for the default branch (see HeadBranch).
type EntryKey struct {
	Project ProjectCommit
	URL     RepoURL
	Branch  string
}

// NormalizeBranch maps the reserved HEAD name to the internal empty form.
func NormalizeBranch(branch string) string {
	if branch == HeadBranch {
		return ""
	}
	return branch
}

// DisplayBranch is the inverse of NormalizeBranch, for output documents.
func DisplayBranch(branch string) string {
	if branch == "" {
		return HeadBranch
	}
	return branch
}

func (k EntryKey) String() string {
	return fmt.Sprintf("%s %s %s", k.Project, k.URL, DisplayBranch(k.Branch))
}

// Origin says where a tracking entry came from: the empty string for local
// configuration, otherwise the URL of the federation source that defined it.
// Local origin always takes precedence during merges.
type Origin string

// OriginLocal marks entries defined by this instance's own config.
const OriginLocal Origin = ""

// IsLocal reports whether the entry was defined locally.
func (o Origin) IsLocal() bool { return o == OriginLocal }

// TrackingEntry is the desired-state half of an entry: its key, flags, and
// provenance. The observed half lives in EntryStatus.
type TrackingEntry struct {
	Key      EntryKey
	Active   bool
	Federate bool
	Pinned   bool
	Origin   Origin
}

// WalkStatus classifies the outcome of an ancestry walk.
type WalkStatus int

const (
	// WalkFound means the target commit was reached from the tip.
	WalkFound WalkStatus = iota + 1
	// WalkNotFound means the entire reachable history was exhausted without
	// finding the target. Absence is proven.
	WalkNotFound
	// WalkUnknown means the depth budget ran out first. Absence is not
	// proven and prior state must be kept.
	WalkUnknown
)

func (s WalkStatus) String() string {
	switch s {
	case WalkFound:
		return "found"
	case WalkNotFound:
		return "not-found"
	case WalkUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// WalkResult is the outcome of a bounded ancestry walk. Distance is the
// number of parent hops from the tip to the target and is only meaningful
// when Status is WalkFound.
type WalkResult struct {
	Status   WalkStatus
	Distance int
}

// ProjectMeta is the cached resolution of a project commit's message.
// Valid is false when the message does not follow the [Project] convention;
// such projects stay in the store as a diagnosable error state.
type ProjectMeta struct {
	Commit      ProjectCommit
	Title       string
	Description string
	Message     string
	Valid       bool
	ResolvedAt  time.Time
}

// EntryStatus is the last recorded sync outcome for a tracking entry.
type EntryStatus struct {
	Head       string
	Walk       WalkStatus
	Distance   int
	NewCommits int
	Err        string
	SyncedAt   time.Time
}

// SourceState is the persisted condition of a federation source.
type SourceState struct {
	URL           string
	Active        bool
	LastFetchedAt time.Time
	NextFetchAt   time.Time
	LastError     string
}

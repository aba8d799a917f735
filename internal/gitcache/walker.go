package gitcache

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// DefaultDepthLimit bounds ancestry walks. Forks deeper than this from
// their project commit come back as WalkUnknown rather than not-found.
const DefaultDepthLimit = 100000

// Walk tests whether target is reachable from start by following parent
// links, visiting at most depthLimit hops from start.
//
// The traversal is an iterative breadth-first search with an explicit
// frontier and a visited set keyed by hash, so merge diamonds and shared
// ancestors are visited once and arbitrary topologies terminate.
//
// Outcomes:
//   - WalkFound with the hop distance on first encounter of target.
//   - WalkNotFound only when the entire reachable history fit within the
//     depth budget and target was not in it.
//   - WalkUnknown when the budget cut the walk short: absence is not
//     proven, so callers must keep prior state.
//
// Errors reading commit objects are returned as errors, never folded into
// WalkNotFound.
func (c *Cache) Walk(start, target plumbing.Hash, depthLimit int) (model.WalkResult, error) {
	if depthLimit <= 0 {
		depthLimit = DefaultDepthLimit
	}
	if start == target {
		return model.WalkResult{Status: model.WalkFound, Distance: 0}, nil
	}

	type node struct {
		hash  plumbing.Hash
		depth int
	}
	frontier := []node{{hash: start, depth: 0}}
	visited := map[plumbing.Hash]struct{}{start: {}}
	truncated := false

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]

		commit, err := c.repo.CommitObject(cur.hash)
		if err != nil {
			return model.WalkResult{}, fmt.Errorf("walk: read commit %s: %w", cur.hash, err)
		}
		if cur.depth == depthLimit {
			if commit.NumParents() > 0 {
				truncated = true
			}
			continue
		}
		for _, parent := range commit.ParentHashes {
			if parent == target {
				return model.WalkResult{Status: model.WalkFound, Distance: cur.depth + 1}, nil
			}
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			frontier = append(frontier, node{hash: parent, depth: cur.depth + 1})
		}
	}

	if truncated {
		return model.WalkResult{Status: model.WalkUnknown}, nil
	}
	return model.WalkResult{Status: model.WalkNotFound}, nil
}

// CountNewCommits returns how many commits are reachable from tip but not
// from prev. Used for the activity history: "how much happened since the
// last sync". Returns 0 when prev is unset or unknown to the cache.
func (c *Cache) CountNewCommits(prev, tip plumbing.Hash) int {
	if prev == plumbing.ZeroHash || prev == tip {
		return 0
	}
	old := map[plumbing.Hash]struct{}{}
	if err := c.collect(prev, old); err != nil {
		return 0
	}
	count := 0
	seen := map[plumbing.Hash]struct{}{}
	frontier := []plumbing.Hash{tip}
	for len(frontier) > 0 {
		h := frontier[0]
		frontier = frontier[1:]
		if _, done := seen[h]; done {
			continue
		}
		seen[h] = struct{}{}
		if _, ok := old[h]; ok {
			continue
		}
		commit, err := c.repo.CommitObject(h)
		if err != nil {
			return 0
		}
		count++
		frontier = append(frontier, commit.ParentHashes...)
	}
	return count
}

// collect gathers every commit reachable from h into set.
func (c *Cache) collect(h plumbing.Hash, set map[plumbing.Hash]struct{}) error {
	frontier := []plumbing.Hash{h}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if _, done := set[cur]; done {
			continue
		}
		set[cur] = struct{}{}
		commit, err := c.repo.CommitObject(cur)
		if err != nil {
			return err
		}
		frontier = append(frontier, commit.ParentHashes...)
	}
	return nil
}

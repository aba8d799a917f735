// Package gitcache maintains a bare git repository that acts as a shared
// object cache for every tracked fork. Branch tips from remote repositories
// are fetched into deterministically named local branches, after which
// ancestry checks run entirely against local objects.
package gitcache

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5/memfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	objcache "github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// ErrTransport marks fetch failures caused by the network or the remote
// host. Callers must treat these as transient and keep prior sync state.
var ErrTransport = errors.New("transport error")

// ErrMissingCommit is returned when a commit object is not present in the
// cache, for example a configured project commit that no fork has published.
var ErrMissingCommit = errors.New("commit not in cache")

// ErrMissingBranch marks a fetch that reached the remote but found no ref
// for the requested branch. Unlike ErrTransport this is not transient: the
// branch was deleted or never existed.
var ErrMissingBranch = errors.New("no such branch")

// Cache is a bare repository holding objects from all tracked forks.
// Methods are safe for concurrent use: go-git storage is locked internally
// and distinct forks land on distinct local branches.
type Cache struct {
	repo *gogit.Repository
}

// Open opens the cache at path, initializing a bare repository if none
// exists. Safe to call on every start.
func Open(path string) (*Cache, error) {
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInit(path, true)
	}
	if err != nil {
		return nil, fmt.Errorf("open git cache %q: %w", path, err)
	}
	return &Cache{repo: repo}, nil
}

// NewInMemory returns a cache backed by an in-memory filesystem. Used in
// tests.
func NewInMemory() (*Cache, error) {
	storer := filesystem.NewStorage(memfs.New(), objcache.NewObjectLRUDefault())
	repo, err := gogit.Init(storer, nil)
	if err != nil {
		return nil, fmt.Errorf("init in-memory cache: %w", err)
	}
	return &Cache{repo: repo}, nil
}

// LocalBranch returns the cache-local branch name for a fork's branch.
//
// The default branch maps to "gan" + sha256(url); named branches mix the
// branch name in as an HMAC key so that the same URL's branches never
// collide with each other or with other URLs.
func LocalBranch(url model.RepoURL, branch string) string {
	if branch == "" {
		sum := sha256.Sum256([]byte(url))
		return "gan" + hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, []byte(branch))
	mac.Write([]byte(url))
	return "gan" + hex.EncodeToString(mac.Sum(nil))
}

// FetchBranch force-fetches one branch tip from a remote fork into the
// cache and returns the new tip hash. branch "" means the remote's default
// branch (its HEAD).
func (c *Cache) FetchBranch(ctx context.Context, url model.RepoURL, branch string) (plumbing.Hash, error) {
	remoteRef := "HEAD"
	if branch != "" {
		remoteRef = "refs/heads/" + branch
	}
	local := LocalBranch(url, branch)

	remote, err := c.repo.CreateRemoteAnonymous(&config.RemoteConfig{
		Name: "anonymous",
		URLs: []string{url.String()},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("configure remote %s: %w", url, err)
	}

	spec := config.RefSpec(fmt.Sprintf("+%s:refs/heads/%s", remoteRef, local))
	err = remote.FetchContext(ctx, &gogit.FetchOptions{
		RefSpecs: []config.RefSpec{spec},
		Force:    true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		var noRef gogit.NoMatchingRefSpecError
		if errors.As(err, &noRef) {
			return plumbing.ZeroHash, fmt.Errorf("fetch %s %s: %w: %w", url, remoteRef, ErrMissingBranch, err)
		}
		return plumbing.ZeroHash, fmt.Errorf("fetch %s %s: %w: %w", url, remoteRef, ErrTransport, err)
	}

	ref, err := c.repo.Reference(plumbing.NewBranchReferenceName(local), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve fetched tip for %s: %w", url, err)
	}
	return ref.Hash(), nil
}

// CommitMessage returns the full message of a commit in the cache.
func (c *Cache) CommitMessage(hash plumbing.Hash) (string, error) {
	commit, err := c.repo.CommitObject(hash)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return "", fmt.Errorf("commit %s: %w", hash, ErrMissingCommit)
	}
	if err != nil {
		return "", fmt.Errorf("read commit %s: %w", hash, err)
	}
	return commit.Message, nil
}

// HasCommit reports whether the cache holds the given commit object.
func (c *Cache) HasCommit(hash plumbing.Hash) bool {
	_, err := c.repo.CommitObject(hash)
	return err == nil
}

package cli

import (
	"github.com/rs/zerolog"

	"github.com/ganarchy/GAnarchy/internal/config"
	"github.com/ganarchy/GAnarchy/internal/gitcache"
	"github.com/ganarchy/GAnarchy/internal/store"
)

// Env bundles the loaded config, state database, and git cache that the
// sync-facing commands all need.
type Env struct {
	Config *config.Config
	Store  *store.Store
	Cache  *gitcache.Cache
	Log    zerolog.Logger
}

// openEnv loads the config and opens the database and git cache. Any
// failure here is fatal for the command.
func openEnv(rootOpts *RootOptions) (*Env, error) {
	cfg, err := config.Load(rootOpts.ConfigPath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	st, err := store.Open(rootOpts.DatabasePath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	cache, err := gitcache.Open(rootOpts.CachePath())
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitFailure, "open git cache", err)
	}
	return &Env{Config: cfg, Store: st, Cache: cache, Log: rootOpts.Logger}, nil
}

// Close releases the environment's resources.
func (e *Env) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
}

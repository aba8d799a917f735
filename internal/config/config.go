package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// Sync engine defaults. Small worker counts keep remote hosts happy.
const (
	DefaultWorkers      = 4
	DefaultDepthLimit   = 100000
	DefaultEntryTimeout = 60 * time.Second
	DefaultRunTimeout   = 30 * time.Minute
)

// Config is the fully validated local configuration.
type Config struct {
	BaseURL string
	Title   string

	// Entries are the locally configured tracking entries. Their flags
	// always win over anything a federation source says.
	Entries []model.TrackingEntry

	// Sources are the federation sources in declared order. Order is
	// precedence: the first active source defining a key wins.
	Sources []SourceRef

	Workers      int
	DepthLimit   int
	EntryTimeout time.Duration
	RunTimeout   time.Duration
}

// Load reads and validates the config file at path. Any validation
// problem is fatal: a run must not start from a half-understood config.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse validates and converts a raw config document.
func Parse(raw []byte) (*Config, error) {
	doc, err := DecodeDocument(raw)
	if err != nil {
		return nil, err
	}
	if doc.BaseURL == "" {
		return nil, fmt.Errorf("config: base_url is required")
	}
	base, err := url.Parse(doc.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("config: invalid base_url %q", doc.BaseURL)
	}

	title := doc.Title
	if title == "" {
		title = "GAnarchy on " + base.Hostname()
	}

	entries, problems := doc.Entries(model.OriginLocal, true)
	if len(problems) > 0 {
		return nil, fmt.Errorf("config: %v", problems[0])
	}

	cfg := &Config{
		BaseURL:      doc.BaseURL,
		Title:        title,
		Entries:      entries,
		Sources:      doc.Sources(raw),
		Workers:      DefaultWorkers,
		DepthLimit:   DefaultDepthLimit,
		EntryTimeout: DefaultEntryTimeout,
		RunTimeout:   DefaultRunTimeout,
	}
	if err := cfg.applySyncOptions(doc.Sync); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applySyncOptions(opts *SyncOptions) error {
	if opts == nil {
		return nil
	}
	if opts.Workers > 0 {
		c.Workers = opts.Workers
	}
	if opts.DepthLimit > 0 {
		c.DepthLimit = opts.DepthLimit
	}
	if opts.EntryTimeout != "" {
		d, err := time.ParseDuration(opts.EntryTimeout)
		if err != nil {
			return fmt.Errorf("config: entry_timeout: %w", err)
		}
		c.EntryTimeout = d
	}
	if opts.RunTimeout != "" {
		d, err := time.ParseDuration(opts.RunTimeout)
		if err != nil {
			return fmt.Errorf("config: run_timeout: %w", err)
		}
		c.RunTimeout = d
	}
	return nil
}

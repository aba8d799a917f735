// Package federation pulls repo-list documents from remote instances and
// merges their tracking entries with the local configuration under an
// explicit trust policy.
package federation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ganarchy/GAnarchy/internal/config"
)

const (
	userAgent = "ganarchy/1.0"

	// defaultRefresh is used when a source sends no Refresh hint.
	defaultRefresh = time.Hour

	// maxDocumentSize caps how much of a remote document is read.
	maxDocumentSize = 1 << 20
)

// Fetcher retrieves repo-list documents over HTTP.
type Fetcher struct {
	client *http.Client
	log    zerolog.Logger
}

// NewFetcher builds a Fetcher. A nil client gets a default with a modest
// timeout; per-request contexts can always shorten it.
func NewFetcher(client *http.Client, log zerolog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, log: log}
}

// Fetch downloads and validates one source document. The returned duration
// is the source's Refresh hint for scheduling the next fetch.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*config.Document, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	// TOML has no registered media type; accept anything.
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	refresh := parseRefresh(resp.Header.Get("Refresh"))
	if resp.StatusCode != http.StatusOK {
		return nil, refresh, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, refresh, fmt.Errorf("fetch %s: read body: %w", url, err)
	}
	doc, err := config.DecodeDocument(raw)
	if err != nil {
		return nil, refresh, fmt.Errorf("fetch %s: %w", url, err)
	}

	f.log.Debug().Str("source", url).Int("bytes", len(raw)).Msg("fetched repo list")
	return doc, refresh, nil
}

// parseRefresh reads an HTTP Refresh header, either "3600" or
// "3600;url=...". Anything unparseable falls back to the default.
func parseRefresh(header string) time.Duration {
	if header == "" {
		return defaultRefresh
	}
	value := header
	if i := strings.IndexByte(header, ';'); i >= 0 {
		value = header[:i]
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return defaultRefresh
	}
	return time.Duration(seconds) * time.Second
}

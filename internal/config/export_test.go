package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganarchy/GAnarchy/internal/model"
)

func exportEntry(commit, url, branch string, active, federate bool) model.TrackingEntry {
	return model.TrackingEntry{
		Key: model.EntryKey{
			Project: model.ProjectCommit(commit),
			URL:     model.RepoURL(url),
			Branch:  model.NormalizeBranch(branch),
		},
		Active:   active,
		Federate: federate,
	}
}

// The export document must round-trip through the shared document parser:
// that is what makes it consumable as another instance's repo_list_srcs
// target.
func TestExport_RoundTrip(t *testing.T) {
	entries := []model.TrackingEntry{
		exportEntry(commitA, "https://example.org/fork.git", "HEAD", true, true),
		exportEntry(commitA, "https://example.org/fork.git", "dev", true, true),
		exportEntry(commitB, "https://mirror.example/fork.git", "HEAD", true, true),
	}

	raw, err := Export("https://hub.example.org", "My Hub", entries)
	require.NoError(t, err)

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://hub.example.org", doc.BaseURL)
	assert.Equal(t, "My Hub", doc.Title)

	got, problems := doc.Entries(model.Origin("https://hub.example.org"), false)
	require.Empty(t, problems)
	require.Len(t, got, 3)
	for _, e := range got {
		assert.True(t, e.Active, "exported entries are always published active")
	}
}

func TestExport_FiltersEntries(t *testing.T) {
	entries := []model.TrackingEntry{
		exportEntry(commitA, "https://example.org/public.git", "HEAD", true, true),
		// Locally disabled: never republished, whatever federate says.
		exportEntry(commitA, "https://example.org/disabled.git", "HEAD", false, true),
		// Not federated: stays local.
		exportEntry(commitA, "https://example.org/private.git", "HEAD", true, false),
	}

	raw, err := Export("https://hub.example.org", "My Hub", entries)
	require.NoError(t, err)

	doc, err := DecodeDocument(raw)
	require.NoError(t, err)
	got, problems := doc.Entries(model.OriginLocal, false)
	require.Empty(t, problems)
	require.Len(t, got, 1)
	assert.Equal(t, model.RepoURL("https://example.org/public.git"), got[0].Key.URL)
}

func TestExport_Deterministic(t *testing.T) {
	entries := []model.TrackingEntry{
		exportEntry(commitB, "https://b.example/r.git", "HEAD", true, true),
		exportEntry(commitA, "https://a.example/r.git", "dev", true, true),
	}
	first, err := Export("https://hub.example.org", "t", entries)
	require.NoError(t, err)
	second, err := Export("https://hub.example.org", "t", entries)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

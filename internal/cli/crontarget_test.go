package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dataDir string) {
	t.Helper()
	raw := []byte("base_url = \"https://hub.example.org\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), raw, 0o644))
}

func TestCronTarget_ProjectList(t *testing.T) {
	dataDir := t.TempDir()
	// Added in reverse order; output is sorted.
	_, err := executeCommand(t, "--data-dir", dataDir,
		"repo", "add", "https://example.com/b.git", "--project", testCommitB)
	require.NoError(t, err)
	_, err = executeCommand(t, "--data-dir", dataDir,
		"repo", "add", "https://example.com/a.git", "--project", testCommitA)
	require.NoError(t, err)

	out, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "project-list")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "project_list", []byte(out))
}

func TestCronTarget_ProjectListSkipsDisabled(t *testing.T) {
	dataDir := t.TempDir()
	_, err := executeCommand(t, "--data-dir", dataDir,
		"repo", "add", "https://example.com/a.git", "--project", testCommitA)
	require.NoError(t, err)
	_, err = executeCommand(t, "--data-dir", dataDir,
		"repo", "add", "https://example.com/b.git", "--project", testCommitB)
	require.NoError(t, err)
	_, err = executeCommand(t, "--data-dir", dataDir, "repo", "disable", "https://example.com/b.git")
	require.NoError(t, err)

	out, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "project-list")
	require.NoError(t, err)
	assert.Equal(t, testCommitA+"\n", out)
}

// federatedSource serves a repo-list document naming one fork, switchable
// between listing it active, listing it inactive, and failing outright.
type federatedSource struct {
	srv  *httptest.Server
	mode atomic.Int32 // 0 active, 1 inactive, 2 server error
}

func newFederatedSource(t *testing.T, forkURL string) *federatedSource {
	t.Helper()
	fs := &federatedSource{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch fs.mode.Load() {
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			active := "true"
			if fs.mode.Load() == 1 {
				active = "false"
			}
			fmt.Fprintf(w, "[projects.%s.'%s'.HEAD]\nactive = %s\n", testCommitA, forkURL, active)
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func writeFederatedConfig(t *testing.T, dataDir, sourceURL string) {
	t.Helper()
	raw := fmt.Sprintf("base_url = \"https://hub.example.org\"\n\n[repo_list_srcs.%q]\nactive = true\n", sourceURL)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "config.toml"), []byte(raw), 0o644))
}

func TestCronTargetConfig_RetractedEntryIsUntracked(t *testing.T) {
	dataDir := t.TempDir()
	forkURL := "https://d.example/fork.git"
	src := newFederatedSource(t, forkURL)
	writeFederatedConfig(t, dataDir, src.srv.URL)

	_, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)
	out, err := executeCommand(t, "--data-dir", dataDir, "export")
	require.NoError(t, err)
	require.Contains(t, out, forkURL, "adopted entry is republished")

	// The source flips the entry to inactive; the next pass must untrack it.
	src.mode.Store(1)
	_, err = executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)

	out, err = executeCommand(t, "--data-dir", dataDir, "export")
	require.NoError(t, err)
	assert.NotContains(t, out, forkURL, "retracted entry must not be republished")

	out, err = executeCommand(t, "--data-dir", dataDir, "cron-target", "project-list")
	require.NoError(t, err)
	assert.Empty(t, out, "retracted entry must not be synced")
}

func TestCronTargetConfig_FailingSourceKeepsEntries(t *testing.T) {
	dataDir := t.TempDir()
	forkURL := "https://d.example/fork.git"
	src := newFederatedSource(t, forkURL)
	writeFederatedConfig(t, dataDir, src.srv.URL)

	_, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)

	// A fetch failure is transient; the adopted entry stays tracked.
	src.mode.Store(2)
	_, err = executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)

	out, err := executeCommand(t, "--data-dir", dataDir, "export")
	require.NoError(t, err)
	assert.Contains(t, out, forkURL, "a failing source must not untrack its entries")
}

func TestCronTargetConfig_RelistedEntryIsReenabled(t *testing.T) {
	dataDir := t.TempDir()
	forkURL := "https://d.example/fork.git"
	src := newFederatedSource(t, forkURL)
	writeFederatedConfig(t, dataDir, src.srv.URL)

	_, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)
	src.mode.Store(1)
	_, err = executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)

	src.mode.Store(0)
	_, err = executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)

	out, err := executeCommand(t, "--data-dir", dataDir, "export")
	require.NoError(t, err)
	assert.Contains(t, out, forkURL, "a re-listed entry is tracked again")
}

func TestCronTarget_Config(t *testing.T) {
	dataDir := t.TempDir()
	writeConfigFile(t, dataDir)

	out, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "merged")
}

func TestCronTarget_InvalidTarget(t *testing.T) {
	dataDir := t.TempDir()
	writeConfigFile(t, dataDir)

	_, err := executeCommand(t, "--data-dir", dataDir, "cron-target", "not-a-target")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCronTarget_UnknownProject(t *testing.T) {
	dataDir := t.TempDir()
	writeConfigFile(t, dataDir)
	_, err := executeCommand(t, "--data-dir", dataDir, "initdb")
	require.NoError(t, err)

	_, err = executeCommand(t, "--data-dir", dataDir, "cron-target", testCommitA)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no tracking entries")
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/devlog/internal/config"
	"github.com/HendryAvila/devlog/internal/devlog"
	"github.com/HendryAvila/devlog/internal/service"
	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeConfig writes a SQLite config into a temp dir and returns its
// path and the database path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.SQLite.Path = filepath.Join(dir, "devlog.db")
	cfg.Logging.Level = "error"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path, cfg.Storage.SQLite.Path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// seed opens the database directly and creates entries in project id.
func seed(t *testing.T, dbPath string, projectID int64, titles ...string) {
	t.Helper()
	s, err := sqlite.Open(dbPath, zap.NewNop())
	require.NoError(t, err)
	b := storage.NewBackend(s, s, s, s)
	defer func() { _ = b.Close() }()

	svc := service.New(b, zap.NewNop())
	for _, title := range titles {
		e, err := svc.Devlogs.Create(context.Background(), service.CreateInput{ProjectID: projectID, Title: title})
		require.NoError(t, err)
		_, err = svc.Devlogs.AddNote(context.Background(), projectID, e.ID, service.NoteInput{Content: "note for " + title})
		require.NoError(t, err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, filepath.Join(t.TempDir(), "missing.yaml"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "devlog v")
}

func TestProjectsAndEntries(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := run(t, cfgPath, "projects", "create", "api", "--description", "REST service")
	require.NoError(t, err)
	assert.Contains(t, out, "project #1 api")

	out, err = run(t, cfgPath, "projects", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "api")

	seed(t, dbPath, 1, "Add rate limiting", "Fix cache eviction")

	out, err = run(t, cfgPath, "entries", "list", "--project", "api")
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 entries")
	assert.Contains(t, out, "Add rate limiting")
	assert.Contains(t, out, "Fix cache eviction")

	out, err = run(t, cfgPath, "entries", "list", "-p", "1", "--search", "cache")
	require.NoError(t, err)
	assert.Contains(t, out, "Fix cache eviction")
	assert.NotContains(t, out, "Add rate limiting")

	out, err = run(t, cfgPath, "stats", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "total 2")
	assert.Contains(t, out, "+2 created")
}

func TestEntriesList_UnknownProject(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := run(t, cfgPath, "entries", "list", "--project", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExportImportRoundTrip(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	_, err := run(t, cfgPath, "projects", "create", "source")
	require.NoError(t, err)
	seed(t, dbPath, 1, "First entry", "Second entry")

	exportPath := filepath.Join(t.TempDir(), "export.json")
	out, err := run(t, cfgPath, "export", "--project", "source", "-o", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 entries")

	raw, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"First entry"`))

	out, err = run(t, cfgPath, "import", exportPath, "--project", "copy", "--create")
	require.NoError(t, err)
	assert.Contains(t, out, "2 entries, 2 notes, 0 skipped")

	// A second import skips what is already there.
	out, err = run(t, cfgPath, "import", exportPath, "--project", "copy")
	require.NoError(t, err)
	assert.Contains(t, out, "0 entries, 0 notes, 2 skipped")

	out, err = run(t, cfgPath, "entries", "list", "--project", "copy", "--status", string(devlog.StatusNew))
	require.NoError(t, err)
	assert.Contains(t, out, "Second entry")
}

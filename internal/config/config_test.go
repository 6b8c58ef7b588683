package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override variable so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DEVLOG_STORAGE_TYPE", "DEVLOG_SQLITE_PATH", "DEVLOG_POSTGRES_DSN", "DATABASE_URL",
		"GITHUB_TOKEN", "DEVLOG_GITHUB_OWNER", "DEVLOG_GITHUB_REPO", "DEVLOG_HTTP_ADDR",
		"DEVLOG_API_URL", "DEVLOG_LOG_LEVEL", "DEVLOG_PROJECT_ID",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, StorageSQLite, cfg.Storage.Type)
	assert.Equal(t, "devlog-", cfg.Storage.GitHub.LabelPrefix)
	assert.Equal(t, int64(1), cfg.MCP.DefaultProjectID)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
storage:
  type: github
  github:
    owner: acme
    repo: tracker
    token: from-file
server:
  addr: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageGitHub, cfg.Storage.Type)
	assert.Equal(t, "acme", cfg.Storage.GitHub.Owner)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	// Untouched nested defaults survive a partial file.
	assert.Equal(t, "https://api.github.com", cfg.Storage.GitHub.APIURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("postgres DSN precedence", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "postgres://generic")
		t.Setenv("DEVLOG_POSTGRES_DSN", "postgres://specific")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "postgres://specific", cfg.Storage.Postgres.DSN)
	})

	t.Run("storage type is lowercased", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEVLOG_STORAGE_TYPE", "Postgres")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, StoragePostgres, cfg.Storage.Type)
	})

	t.Run("bad project id is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEVLOG_PROJECT_ID", "abc")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, int64(1), cfg.MCP.DefaultProjectID)
	})

	t.Run("github settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GITHUB_TOKEN", "tok")
		t.Setenv("DEVLOG_GITHUB_OWNER", "o")
		t.Setenv("DEVLOG_GITHUB_REPO", "r")
		t.Setenv("DEVLOG_PROJECT_ID", "7")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "tok", cfg.Storage.GitHub.Token)
		assert.Equal(t, "o", cfg.Storage.GitHub.Owner)
		assert.Equal(t, "r", cfg.Storage.GitHub.Repo)
		assert.Equal(t, int64(7), cfg.MCP.DefaultProjectID)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default sqlite", func(*Config) {}, false},
		{"postgres without dsn", func(c *Config) { c.Storage.Type = StoragePostgres }, true},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Type = StoragePostgres
			c.Storage.Postgres.DSN = "postgres://x"
		}, false},
		{"github without token", func(c *Config) {
			c.Storage.Type = StorageGitHub
			c.Storage.GitHub.Owner, c.Storage.GitHub.Repo = "o", "r"
		}, true},
		{"unknown type", func(c *Config) { c.Storage.Type = "mongo" }, true},
		{"bad api timeout", func(c *Config) { c.API.Timeout = "soon" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Storage.Type = StoragePostgres
	cfg.Storage.Postgres.DSN = "postgres://saved"

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, Duration("5s", time.Minute))
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, time.Minute, Duration("-1s", time.Minute))
	assert.Equal(t, time.Minute, GitHubConfig{CacheTTL: "bogus"}.CacheTTLDuration())
}

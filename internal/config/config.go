// Package config loads devlog's YAML configuration and applies
// environment overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage types accepted by Storage.Type.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageGitHub   = "github"
)

// Config is the root configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
	MCP     MCPConfig     `yaml:"mcp"`
	Updater UpdaterConfig `yaml:"updater"`
}

// StorageConfig selects and configures the storage provider.
type StorageConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	GitHub   GitHubConfig   `yaml:"github"`
}

// SQLiteConfig configures the SQLite provider. When the GitHub provider
// is selected this database still holds hierarchy and event data.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the PostgreSQL provider.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// GitHubConfig configures the GitHub Issues provider and the REST client.
type GitHubConfig struct {
	Owner       string  `yaml:"owner"`
	Repo        string  `yaml:"repo"`
	Token       string  `yaml:"token"`
	APIURL      string  `yaml:"api_url"`
	LabelPrefix string  `yaml:"label_prefix"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second
	Burst       int     `yaml:"burst"`
	CacheSize   int     `yaml:"cache_size"`
	CacheTTL    string  `yaml:"cache_ttl"`
}

// CacheTTLDuration parses CacheTTL, falling back to one minute.
func (g GitHubConfig) CacheTTLDuration() time.Duration {
	d, err := time.ParseDuration(g.CacheTTL)
	if err != nil || d < 0 {
		return time.Minute
	}
	return d
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// APIConfig configures the REST client used by the MCP adapter and CLI.
type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MCPConfig configures the MCP adapter.
type MCPConfig struct {
	DefaultProjectID int64 `yaml:"default_project_id"`
}

// UpdaterConfig names the repository self-update pulls releases from.
type UpdaterConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// DefaultDir returns ~/.devlog.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devlog"
	}
	return filepath.Join(home, ".devlog")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type:   StorageSQLite,
			SQLite: SQLiteConfig{Path: filepath.Join(DefaultDir(), "devlog.db")},
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
			GitHub: GitHubConfig{
				APIURL:      "https://api.github.com",
				LabelPrefix: "devlog-",
				RateLimit:   10,
				Burst:       20,
				CacheSize:   500,
				CacheTTL:    "1m",
			},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:3200",
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		API: APIConfig{
			BaseURL:    "http://127.0.0.1:3200",
			Timeout:    "30s",
			MaxRetries: 3,
		},
		Logging: LoggingConfig{Level: "info"},
		MCP:     MCPConfig{DefaultProjectID: 1},
		Updater: UpdaterConfig{Owner: "HendryAvila", Repo: "devlog"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is
// not an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DEVLOG_STORAGE_TYPE"); v != "" {
		c.Storage.Type = strings.ToLower(v)
	}
	if v := os.Getenv("DEVLOG_SQLITE_PATH"); v != "" {
		c.Storage.SQLite.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.Postgres.DSN = v
	}
	// The devlog-specific variable wins over the generic one.
	if v := os.Getenv("DEVLOG_POSTGRES_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.Storage.GitHub.Token = v
	}
	if v := os.Getenv("DEVLOG_GITHUB_OWNER"); v != "" {
		c.Storage.GitHub.Owner = v
	}
	if v := os.Getenv("DEVLOG_GITHUB_REPO"); v != "" {
		c.Storage.GitHub.Repo = v
	}
	if v := os.Getenv("DEVLOG_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("DEVLOG_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("DEVLOG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DEVLOG_PROJECT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			c.MCP.DefaultProjectID = id
		}
	}
}

// Validate checks the block of the selected storage type.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("config: storage.sqlite.path is required")
		}
	case StoragePostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("config: storage.postgres.dsn is required (or set DEVLOG_POSTGRES_DSN)")
		}
	case StorageGitHub:
		g := c.Storage.GitHub
		if g.Owner == "" || g.Repo == "" {
			return fmt.Errorf("config: storage.github.owner and storage.github.repo are required")
		}
		if g.Token == "" {
			return fmt.Errorf("config: storage.github.token is required (or set GITHUB_TOKEN)")
		}
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("config: storage.sqlite.path is required for hierarchy data")
		}
	default:
		return fmt.Errorf("config: unknown storage type %q: must be sqlite, postgres or github", c.Storage.Type)
	}
	if _, err := time.ParseDuration(c.API.Timeout); c.API.Timeout != "" && err != nil {
		return fmt.Errorf("config: api.timeout: %w", err)
	}
	return nil
}

// Duration parses a duration string, returning fallback when empty or
// malformed.
func Duration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Package backend opens the storage provider named in the configuration
// and bundles its stores.
package backend

import (
	"context"
	"fmt"

	"github.com/HendryAvila/devlog/internal/cache"
	"github.com/HendryAvila/devlog/internal/config"
	gh "github.com/HendryAvila/devlog/internal/github"
	"github.com/HendryAvila/devlog/internal/ratelimit"
	"github.com/HendryAvila/devlog/internal/storage"
	ghstore "github.com/HendryAvila/devlog/internal/storage/github"
	"github.com/HendryAvila/devlog/internal/storage/postgres"
	"github.com/HendryAvila/devlog/internal/storage/sqlite"
	"go.uber.org/zap"
)

// Open validates cfg and opens its storage provider.
//
//   - sqlite: one database file serves all three stores
//   - postgres: one pool serves all three stores
//   - github: entries live in issues; hierarchy and events stay in the
//     SQLite database at storage.sqlite.path
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage.Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Storage.Type {
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return storage.NewBackend(s, s, s, s), nil

	case config.StoragePostgres:
		pg := cfg.Storage.Postgres
		s, err := postgres.Open(ctx, pg.DSN, pg.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		return storage.NewBackend(s, s, s, s), nil

	case config.StorageGitHub:
		local, err := sqlite.Open(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		issues := NewGitHubStore(cfg.Storage.GitHub, cfg.MCP.DefaultProjectID, logger)
		logger.Info("using GitHub issues for devlog entries",
			zap.String("repo", cfg.Storage.GitHub.Owner+"/"+cfg.Storage.GitHub.Repo))
		return storage.NewBackend(issues, local, local, issues, local), nil
	}
	return nil, fmt.Errorf("backend: unknown storage type %q", cfg.Storage.Type)
}

// NewGitHubStore wires the rate-limited, cached REST client into an
// issue-backed store.
func NewGitHubStore(g config.GitHubConfig, projectID int64, logger *zap.Logger) *ghstore.Store {
	var responses *cache.LRU[string, []byte]
	if g.CacheSize > 0 {
		responses = cache.New[string, []byte](g.CacheSize, g.CacheTTLDuration())
	}
	client := gh.NewClient(gh.Config{
		BaseURL: g.APIURL,
		Owner:   g.Owner,
		Repo:    g.Repo,
		Token:   g.Token,
	}, ratelimit.New(g.RateLimit, g.Burst, logger), responses, logger)
	return ghstore.New(client, gh.LabelConfig{Prefix: g.LabelPrefix}, projectID, logger)
}

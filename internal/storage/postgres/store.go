// Package postgres implements every devlog store on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store implements storage.DevlogStore, storage.HierarchyStore and
// storage.EventStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var (
	_ storage.DevlogStore    = (*Store)(nil)
	_ storage.HierarchyStore = (*Store)(nil)
	_ storage.EventStore     = (*Store)(nil)
)

// Open connects to dsn, pings the server and runs migrations. maxConns
// <= 0 keeps the pgxpool default.
func Open(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool, logger: logger.Named("postgres")}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migration: %w", err)
	}
	s.logger.Debug("database ready", zap.String("host", cfg.ConnConfig.Host))
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ─── Migrations ──────────────────────────────────────────────────────────────

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		full_name   TEXT NOT NULL DEFAULT '',
		repo_url    TEXT NOT NULL DEFAULT '',
		repo_owner  TEXT NOT NULL DEFAULT '',
		repo_name   TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devlog_entries (
		id                BIGSERIAL PRIMARY KEY,
		key               TEXT        NOT NULL,
		title             TEXT        NOT NULL,
		type              TEXT        NOT NULL,
		description       TEXT        NOT NULL DEFAULT '',
		status            TEXT        NOT NULL,
		priority          TEXT        NOT NULL,
		assignee          TEXT        NOT NULL DEFAULT '',
		project_id        BIGINT      NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		archived          BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		closed_at         TIMESTAMPTZ,
		business_context  TEXT        NOT NULL DEFAULT '',
		technical_context TEXT        NOT NULL DEFAULT '',
		context_json      JSONB       NOT NULL DEFAULT '{}',
		ai_context        JSONB       NOT NULL DEFAULT '{}',
		files             JSONB       NOT NULL DEFAULT '[]',
		related_devlogs   JSONB       NOT NULL DEFAULT '[]',
		external_refs     JSONB       NOT NULL DEFAULT '[]',
		UNIQUE (project_id, key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_project ON devlog_entries(project_id, archived)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_updated ON devlog_entries(updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_search ON devlog_entries USING GIN (` + searchVector + `)`,
	`CREATE TABLE IF NOT EXISTS devlog_notes (
		id           TEXT        PRIMARY KEY,
		devlog_id    BIGINT      NOT NULL REFERENCES devlog_entries(id) ON DELETE CASCADE,
		timestamp    TIMESTAMPTZ NOT NULL,
		category     TEXT        NOT NULL,
		content      TEXT        NOT NULL,
		files        JSONB       NOT NULL DEFAULT '[]',
		code_changes TEXT        NOT NULL DEFAULT '',
		content_hash TEXT        NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_devlog ON devlog_notes(devlog_id, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS machines (
		id           BIGSERIAL PRIMARY KEY,
		machine_id   TEXT        NOT NULL UNIQUE,
		hostname     TEXT        NOT NULL,
		username     TEXT        NOT NULL DEFAULT '',
		os_type      TEXT        NOT NULL DEFAULT '',
		os_version   TEXT        NOT NULL DEFAULT '',
		machine_type TEXT        NOT NULL,
		ip_address   TEXT        NOT NULL DEFAULT '',
		metadata     JSONB       NOT NULL DEFAULT '{}',
		created_at   TIMESTAMPTZ NOT NULL,
		last_seen_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS workspaces (
		id             BIGSERIAL PRIMARY KEY,
		project_id     BIGINT      NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		machine_id     BIGINT      NOT NULL REFERENCES machines(id) ON DELETE CASCADE,
		workspace_id   TEXT        NOT NULL UNIQUE,
		workspace_path TEXT        NOT NULL,
		workspace_type TEXT        NOT NULL,
		branch         TEXT        NOT NULL DEFAULT '',
		git_commit     TEXT        NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL,
		last_seen_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id            BIGSERIAL PRIMARY KEY,
		session_id    TEXT        NOT NULL UNIQUE,
		workspace_id  BIGINT      NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
		agent_type    TEXT        NOT NULL,
		model_id      TEXT        NOT NULL DEFAULT '',
		started_at    TIMESTAMPTZ NOT NULL,
		ended_at      TIMESTAMPTZ,
		message_count INTEGER     NOT NULL DEFAULT 0,
		total_tokens  INTEGER     NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS agent_sessions (
		id            TEXT        PRIMARY KEY,
		agent_id      TEXT        NOT NULL,
		agent_version TEXT        NOT NULL DEFAULT '',
		project_id    BIGINT      NOT NULL,
		start_time    TIMESTAMPTZ NOT NULL,
		end_time      TIMESTAMPTZ,
		duration      BIGINT,
		context       JSONB       NOT NULL DEFAULT '{}',
		metrics       JSONB       NOT NULL DEFAULT '{}',
		outcome       TEXT        NOT NULL DEFAULT '',
		quality_score DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_sessions_project ON agent_sessions(project_id, start_time DESC)`,
	`CREATE TABLE IF NOT EXISTS agent_events (
		id                TEXT        PRIMARY KEY,
		timestamp         TIMESTAMPTZ NOT NULL,
		event_type        TEXT        NOT NULL,
		agent_id          TEXT        NOT NULL,
		agent_version     TEXT        NOT NULL DEFAULT '',
		session_id        TEXT        NOT NULL,
		project_id        BIGINT      NOT NULL,
		context           JSONB       NOT NULL DEFAULT '{}',
		data              JSONB       NOT NULL DEFAULT '{}',
		metrics           JSONB,
		parent_event_id   TEXT        NOT NULL DEFAULT '',
		related_event_ids JSONB       NOT NULL DEFAULT '[]',
		tags              JSONB       NOT NULL DEFAULT '[]',
		severity          TEXT        NOT NULL,
		token_count       INTEGER     NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON agent_events(session_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_events_project ON agent_events(project_id, timestamp)`,
}

// searchVector is the expression both the GIN index and Search use, so
// the planner can match them.
const searchVector = `to_tsvector('english', title || ' ' || description || ' ' || business_context || ' ' || technical_context)`

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	for _, stmt := range migrations {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// q rewrites ? placeholders for PostgreSQL.
func q(query string) string { return sqlq.Rebind(query) }

// mapErr translates pgx errors into storage sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: referenced record missing: %w", op, storage.ErrInvalid)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(op string, tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// jsonb marshals v for a JSONB parameter.
func jsonb(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

func fromJSON(b []byte, v any) {
	if len(b) == 0 {
		return
	}
	_ = json.Unmarshal(b, v)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// Package sqlite implements every devlog store on a single SQLite
// database with FTS5 full-text search over entries.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HendryAvila/devlog/internal/storage"
	"github.com/HendryAvila/devlog/internal/storage/sqlq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Store implements storage.DevlogStore, storage.HierarchyStore and
// storage.EventStore.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	hooks  storeHooks
}

var (
	_ storage.DevlogStore    = (*Store)(nil)
	_ storage.HierarchyStore = (*Store)(nil)
	_ storage.EventStore     = (*Store)(nil)
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func (s *Store) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// Open creates the parent directory if needed, opens SQLite in WAL mode
// and runs migrations.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger.Named("sqlite")}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	s.logger.Debug("database ready", zap.String("path", path))
	return s, nil
}

// dsn repeats the connection pragmas as _pragma parameters so every
// pooled connection gets them, not only the first.
func dsn(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			full_name   TEXT NOT NULL DEFAULT '',
			repo_url    TEXT NOT NULL DEFAULT '',
			repo_owner  TEXT NOT NULL DEFAULT '',
			repo_name   TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS devlog_entries (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			key               TEXT    NOT NULL,
			title             TEXT    NOT NULL,
			type              TEXT    NOT NULL,
			description       TEXT    NOT NULL DEFAULT '',
			status            TEXT    NOT NULL,
			priority          TEXT    NOT NULL,
			assignee          TEXT    NOT NULL DEFAULT '',
			project_id        INTEGER NOT NULL,
			archived          INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT    NOT NULL,
			updated_at        TEXT    NOT NULL,
			closed_at         TEXT,
			business_context  TEXT    NOT NULL DEFAULT '',
			technical_context TEXT    NOT NULL DEFAULT '',
			context_json      TEXT    NOT NULL DEFAULT '{}',
			ai_context        TEXT    NOT NULL DEFAULT '{}',
			files             TEXT    NOT NULL DEFAULT '[]',
			related_devlogs   TEXT    NOT NULL DEFAULT '[]',
			external_refs     TEXT    NOT NULL DEFAULT '[]',
			UNIQUE (project_id, key),
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_entries_project ON devlog_entries(project_id, archived);
		CREATE INDEX IF NOT EXISTS idx_entries_status  ON devlog_entries(status);
		CREATE INDEX IF NOT EXISTS idx_entries_updated ON devlog_entries(updated_at DESC);

		CREATE VIRTUAL TABLE IF NOT EXISTS devlog_entries_fts USING fts5(
			title,
			description,
			business_context,
			technical_context,
			content='devlog_entries',
			content_rowid='id'
		);

		CREATE TABLE IF NOT EXISTS devlog_notes (
			id           TEXT    PRIMARY KEY,
			devlog_id    INTEGER NOT NULL,
			timestamp    TEXT    NOT NULL,
			category     TEXT    NOT NULL,
			content      TEXT    NOT NULL,
			files        TEXT    NOT NULL DEFAULT '[]',
			code_changes TEXT    NOT NULL DEFAULT '',
			content_hash TEXT    NOT NULL,
			FOREIGN KEY (devlog_id) REFERENCES devlog_entries(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_notes_devlog ON devlog_notes(devlog_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_notes_hash   ON devlog_notes(devlog_id, content_hash);

		CREATE TABLE IF NOT EXISTS machines (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			machine_id   TEXT NOT NULL UNIQUE,
			hostname     TEXT NOT NULL,
			username     TEXT NOT NULL DEFAULT '',
			os_type      TEXT NOT NULL DEFAULT '',
			os_version   TEXT NOT NULL DEFAULT '',
			machine_type TEXT NOT NULL,
			ip_address   TEXT NOT NULL DEFAULT '',
			metadata     TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL,
			last_seen_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS workspaces (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id     INTEGER NOT NULL,
			machine_id     INTEGER NOT NULL,
			workspace_id   TEXT    NOT NULL UNIQUE,
			workspace_path TEXT    NOT NULL,
			workspace_type TEXT    NOT NULL,
			branch         TEXT    NOT NULL DEFAULT '',
			git_commit     TEXT    NOT NULL DEFAULT '',
			created_at     TEXT    NOT NULL,
			last_seen_at   TEXT    NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
			FOREIGN KEY (machine_id) REFERENCES machines(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_workspaces_project ON workspaces(project_id);

		CREATE TABLE IF NOT EXISTS chat_sessions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT    NOT NULL UNIQUE,
			workspace_id  INTEGER NOT NULL,
			agent_type    TEXT    NOT NULL,
			model_id      TEXT    NOT NULL DEFAULT '',
			started_at    TEXT    NOT NULL,
			ended_at      TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			total_tokens  INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT    NOT NULL,
			FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_chat_workspace ON chat_sessions(workspace_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS agent_sessions (
			id            TEXT    PRIMARY KEY,
			agent_id      TEXT    NOT NULL,
			agent_version TEXT    NOT NULL DEFAULT '',
			project_id    INTEGER NOT NULL,
			start_time    TEXT    NOT NULL,
			end_time      TEXT,
			duration      INTEGER,
			context       TEXT    NOT NULL DEFAULT '{}',
			metrics       TEXT    NOT NULL DEFAULT '{}',
			outcome       TEXT    NOT NULL DEFAULT '',
			quality_score REAL
		);

		CREATE INDEX IF NOT EXISTS idx_agent_sessions_project ON agent_sessions(project_id, start_time DESC);

		CREATE TABLE IF NOT EXISTS agent_events (
			id                TEXT    PRIMARY KEY,
			timestamp         TEXT    NOT NULL,
			event_type        TEXT    NOT NULL,
			agent_id          TEXT    NOT NULL,
			agent_version     TEXT    NOT NULL DEFAULT '',
			session_id        TEXT    NOT NULL,
			project_id        INTEGER NOT NULL,
			context           TEXT    NOT NULL DEFAULT '{}',
			data              TEXT    NOT NULL DEFAULT '{}',
			metrics           TEXT,
			parent_event_id   TEXT    NOT NULL DEFAULT '',
			related_event_ids TEXT    NOT NULL DEFAULT '[]',
			tags              TEXT    NOT NULL DEFAULT '[]',
			severity          TEXT    NOT NULL,
			token_count       INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_events_session ON agent_events(session_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_project ON agent_events(project_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_type    ON agent_events(event_type);
	`
	if _, err := s.execHook(ctx, s.db, schema); err != nil {
		return err
	}

	// FTS triggers (idempotent)
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='entries_fts_insert'",
	).Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	triggers := `
		CREATE TRIGGER entries_fts_insert AFTER INSERT ON devlog_entries BEGIN
			INSERT INTO devlog_entries_fts(rowid, title, description, business_context, technical_context)
			VALUES (new.id, new.title, new.description, new.business_context, new.technical_context);
		END;

		CREATE TRIGGER entries_fts_delete AFTER DELETE ON devlog_entries BEGIN
			INSERT INTO devlog_entries_fts(devlog_entries_fts, rowid, title, description, business_context, technical_context)
			VALUES ('delete', old.id, old.title, old.description, old.business_context, old.technical_context);
		END;

		CREATE TRIGGER entries_fts_update AFTER UPDATE ON devlog_entries BEGIN
			INSERT INTO devlog_entries_fts(devlog_entries_fts, rowid, title, description, business_context, technical_context)
			VALUES ('delete', old.id, old.title, old.description, old.business_context, old.technical_context);
			INSERT INTO devlog_entries_fts(rowid, title, description, business_context, technical_context)
			VALUES (new.id, new.title, new.description, new.business_context, new.technical_context);
		END;
	`
	_, err = s.execHook(ctx, s.db, triggers)
	return err
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// sanitizeFTS wraps each word in quotes so FTS5 operators in user input
// are matched literally.
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		words = append(words, `"`+w+`"`)
	}
	return strings.Join(words, " ")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation checks if an error is a SQLite FOREIGN KEY failure.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// mapErr translates driver errors into storage sentinels.
func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: referenced record missing: %w", op, storage.ErrInvalid)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// affected returns ErrNotFound when an update touched no rows.
func affected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func fromJSON(s string, v any) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), v)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqlq.FormatTime(*t)
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := sqlq.ParseTime(ns.String)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

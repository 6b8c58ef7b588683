package sqlite

import "database/sql"

// DB exposes the internal *sql.DB for test helpers in sqlite_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetCommitHook replaces the transaction commit step.
func (s *Store) SetCommitHook(fn func(tx *sql.Tx) error) {
	s.hooks.commit = fn
}

// Package store provides the SQLite storage layer for GeistFabrik.
//
// All vault data lives in a single SQLite database file: notes, links, tags,
// the content-hash-keyed semantic embedding cache, sessions, per-session
// embeddings, and historical suggestions used for novelty filtering. The
// store exposes primitive CRUD; all domain logic (parsing, splitting,
// similarity, filtering) lives in higher layers.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by lookups that find nothing. Callers are expected
// to check for it with errors.Is rather than treat it as exceptional.
var ErrNotFound = errors.New("store: not found")

// SchemaVersion is the current PRAGMA user_version. Bump it whenever the DDL
// in migrate() changes in a way readers must be aware of.
const SchemaVersion = 1

// DefaultDBPath is used by collaborators that don't override the path.
const DefaultDBPath = "geistfabrik.db"

// Config configures a Store.
type Config struct {
	// DBPath is the SQLite file path, or ":memory:" for an in-memory database.
	DBPath string
}

// Store wraps a SQLite connection with foreign keys enabled and the
// GeistFabrik schema applied.
type Store struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at cfg.DBPath,
// enables foreign keys, and applies the schema.
func New(cfg Config) (*Store, error) {
	path := cfg.DBPath
	if path == "" {
		path = DefaultDBPath
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite only supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under the core's single-threaded write model.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying connection for callers that need raw access
// (e.g. the vault-sync transaction, or tests asserting on sqlite_master).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

package store

import "fmt"

// migrate creates all tables if they don't exist and sets the schema version
// pragma. The DDL mirrors the canonical GeistFabrik schema: notes, links,
// tags, the semantic embedding cache, sessions, per-session embeddings, and
// historical suggestions.
func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notes (
			path       TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			content    TEXT NOT NULL,
			created    TEXT NOT NULL,
			modified   TEXT NOT NULL,
			file_mtime REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_modified ON notes(modified)`,
		`CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title)`,

		`CREATE TABLE IF NOT EXISTS links (
			source_path  TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE,
			target       TEXT NOT NULL,
			display_text TEXT,
			is_embed     INTEGER NOT NULL DEFAULT 0,
			block_ref    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_path)`,
		`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target)`,
		`CREATE INDEX IF NOT EXISTS idx_links_target_source ON links(target, source_path)`,

		`CREATE TABLE IF NOT EXISTS tags (
			note_path TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE,
			tag       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_note ON tags(note_path)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag)`,

		// Semantic embedding cache, keyed by note path; invalidated by
		// comparing model_version (which embeds the content hash) on read.
		`CREATE TABLE IF NOT EXISTS embeddings (
			note_path     TEXT PRIMARY KEY REFERENCES notes(path) ON DELETE CASCADE,
			embedding     BLOB NOT NULL,
			model_version TEXT NOT NULL,
			computed_at   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id       INTEGER PRIMARY KEY AUTOINCREMENT,
			date             TEXT NOT NULL UNIQUE,
			vault_state_hash TEXT,
			created_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date)`,

		`CREATE TABLE IF NOT EXISTS session_embeddings (
			session_id INTEGER NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			note_path  TEXT NOT NULL REFERENCES notes(path) ON DELETE CASCADE,
			embedding  BLOB NOT NULL,
			PRIMARY KEY (session_id, note_path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_embeddings_path ON session_embeddings(note_path)`,

		// Denormalized suggestion history, used only for novelty filtering.
		`CREATE TABLE IF NOT EXISTS session_suggestions (
			session_date    TEXT NOT NULL,
			geist_id        TEXT NOT NULL,
			suggestion_text TEXT NOT NULL,
			block_id        TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			PRIMARY KEY (session_date, block_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_suggestions_date ON session_suggestions(session_date)`,
		`CREATE INDEX IF NOT EXISTS idx_session_suggestions_geist ON session_suggestions(geist_id)`,

		// Path<->integer id mapping backing the indexed (ANN) vector backend.
		// Mirrors the role of vec_path_mapping in the sqlite-vec design this
		// is grounded on, but addresses the pure-Go HNSW index instead.
		`CREATE TABLE IF NOT EXISTS ann_path_mapping (
			vec_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			note_path TEXT NOT NULL UNIQUE REFERENCES notes(path) ON DELETE CASCADE
		)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	return tx.Commit()
}

// SchemaVersionOf returns the PRAGMA user_version recorded in the database.
func (s *Store) SchemaVersionOf() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

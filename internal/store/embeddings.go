package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrStale is returned by GetCachedEmbedding when the cached embedding's
// model_version no longer matches the caller's — the note's content has
// changed since the vector was computed, so it must be recomputed.
var ErrStale = errors.New("store: cached embedding is stale")

// GetCachedEmbedding returns the cached semantic vector for a note, keyed by
// (note_path, model_version) where model_version embeds the content hash.
// Returns ErrNotFound if no row exists, ErrStale if one exists but for a
// different content hash.
func (s *Store) GetCachedEmbedding(ctx context.Context, notePath, wantModelVersion string) ([]float32, error) {
	var blob []byte
	var modelVersion string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding, model_version FROM embeddings WHERE note_path = ?`, notePath,
	).Scan(&blob, &modelVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if modelVersion != wantModelVersion {
		return nil, ErrStale
	}
	return BytesToFloat32(blob), nil
}

// UpsertCachedEmbedding writes (or replaces) a note's cached semantic vector.
func (s *Store) UpsertCachedEmbedding(ctx context.Context, notePath string, vec []float32, modelVersion string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (note_path, embedding, model_version, computed_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(note_path) DO UPDATE SET
		   embedding=excluded.embedding, model_version=excluded.model_version, computed_at=excluded.computed_at`,
		notePath, Float32ToBytes(vec), modelVersion, time.Now().UTC().Format(timeLayout),
	)
	return err
}

// DeleteSessionEmbeddings clears every session_embeddings row for a session.
// Session recomputation always calls this before re-inserting.
func (s *Store) DeleteSessionEmbeddings(ctx context.Context, sessionID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_embeddings WHERE session_id = ?`, sessionID)
	return err
}

// UpsertSessionEmbedding writes one note's 387-dim session vector.
func (s *Store) UpsertSessionEmbedding(ctx context.Context, sessionID int64, notePath string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_embeddings (session_id, note_path, embedding) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, note_path) DO UPDATE SET embedding=excluded.embedding`,
		sessionID, notePath, Float32ToBytes(vec),
	)
	return err
}

// AllSessionEmbeddings eagerly loads every (path -> vector) pair for a
// session — the load step the in-memory vector backend performs up front.
func (s *Store) AllSessionEmbeddings(ctx context.Context, sessionID int64) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT note_path, embedding FROM session_embeddings WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var path string
		var blob []byte
		if err := rows.Scan(&path, &blob); err != nil {
			return nil, err
		}
		out[path] = BytesToFloat32(blob)
	}
	return out, rows.Err()
}

// GetSessionEmbedding returns a single note's session vector, or ErrNotFound.
func (s *Store) GetSessionEmbedding(ctx context.Context, sessionID int64, notePath string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM session_embeddings WHERE session_id = ? AND note_path = ?`, sessionID, notePath,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return BytesToFloat32(blob), nil
}

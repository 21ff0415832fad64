package store

import (
	"context"
	"database/sql"
	"errors"
)

// GetOrCreateVecID returns the integer id assigned to a note path in the
// indexed vector backend's path mapping, allocating one if it doesn't yet
// exist. The pure-Go HNSW index (internal/ann) addresses vectors by int64
// id, not by path, so this table is the bridge between the two.
func (s *Store) GetOrCreateVecID(ctx context.Context, notePath string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT vec_id FROM ann_path_mapping WHERE note_path = ?`, notePath).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO ann_path_mapping (note_path) VALUES (?)`, notePath)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// PathForVecID reverses GetOrCreateVecID, mapping an ANN result id back to
// its note path.
func (s *Store) PathForVecID(ctx context.Context, vecID int64) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT note_path FROM ann_path_mapping WHERE vec_id = ?`, vecID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return path, err
}

// AllVecIDMappings returns every (path, vec_id) pair, used to rebuild the
// in-memory HNSW index on process start.
func (s *Store) AllVecIDMappings(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT note_path, vec_id FROM ann_path_mapping`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var path string
		var id int64
		if err := rows.Scan(&path, &id); err != nil {
			return nil, err
		}
		out[path] = id
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetOrCreateSession returns the session row for date (format "2006-01-02"),
// creating it with a null vault_state_hash if it doesn't already exist. A
// session is identified by its date: at most one session exists per day.
func (s *Store) GetOrCreateSession(ctx context.Context, date string) (sessionID int64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT session_id FROM sessions WHERE date = ?`, date).Scan(&sessionID)
	if err == nil {
		return sessionID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (date, vault_state_hash, created_at) VALUES (?, NULL, ?)`,
		date, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// VaultStateHash returns the stored hash for a session, or "" if unset.
func (s *Store) VaultStateHash(ctx context.Context, sessionID int64) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT vault_state_hash FROM sessions WHERE session_id = ?`, sessionID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return hash.String, nil
}

// SetVaultStateHash records the vault content hash a session's vectors were
// computed against, so a later session on the same day can detect drift.
func (s *Store) SetVaultStateHash(ctx context.Context, sessionID int64, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET vault_state_hash = ? WHERE session_id = ?`, hash, sessionID)
	return err
}

package store

import (
	"context"
	"time"
)

// SuggestionRecord is a historical suggestion emitted on some past session
// date, kept for novelty filtering (a geist shouldn't repeat itself).
type SuggestionRecord struct {
	SessionDate    string
	GeistID        string
	SuggestionText string
	BlockID        string
	CreatedAt      time.Time
}

// RecordSuggestion persists one emitted suggestion. BlockID is the
// caller-supplied dedup key (a uuid) unique within a session date.
func (s *Store) RecordSuggestion(ctx context.Context, r SuggestionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_suggestions (session_date, geist_id, suggestion_text, block_id, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_date, block_id) DO NOTHING`,
		r.SessionDate, r.GeistID, r.SuggestionText, r.BlockID, r.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// RecentSuggestionTexts returns every suggestion_text recorded across all
// geists over the last lookbackDays session dates (inclusive of asOf), used
// by the novelty filter to reject near-duplicate suggestions. Scoped
// globally, not per geist: two different geists emitting the same text is
// still a duplicate from a reader's point of view.
func (s *Store) RecentSuggestionTexts(ctx context.Context, asOf time.Time, lookbackDays int) ([]string, error) {
	since := asOf.AddDate(0, 0, -lookbackDays).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx,
		`SELECT suggestion_text FROM session_suggestions
		 WHERE session_date >= ? AND session_date <= ?
		 ORDER BY session_date`,
		since, asOf.Format("2006-01-02"),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

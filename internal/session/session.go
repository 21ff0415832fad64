// Package session identifies a GeistFabrik run by date, orchestrating
// embedding computation over a chosen vector backend.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/embedtext"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
	"github.com/geistfabrik/geistfabrik/internal/vector"
)

// Session is identified by (date, store). Construction reads or inserts a
// row in sessions, yielding a stable ID. It owns one vector backend and a
// reference to the embedding computer.
type Session struct {
	ID       int64
	Date     time.Time
	Store    *store.Store
	Computer *embedtext.Computer
	Backend  vector.Backend
}

// Open returns the Session for date (format "2006-01-02"), creating its
// store row if absent.
func Open(ctx context.Context, s *store.Store, date time.Time, computer *embedtext.Computer, backend vector.Backend) (*Session, error) {
	id, err := s.GetOrCreateSession(ctx, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("opening session for %s: %w", date.Format("2006-01-02"), err)
	}
	return &Session{ID: id, Date: date, Store: s, Computer: computer, Backend: backend}, nil
}

// VaultStateHash computes SHA-256 over the sorted sequence of (path,
// modified) pairs, used to detect whether the vault has changed since
// embeddings were last computed.
func VaultStateHash(notes []model.Note) string {
	sorted := make([]model.Note, len(notes))
	copy(sorted, notes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, n := range sorted {
		fmt.Fprintf(h, "%s\x00%s\x00", n.Path, n.Modified.UTC().Format(time.RFC3339Nano))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RecomputeEmbeddings computes (with caching) every note's session vector,
// records the resulting vault_state_hash, and (re)loads the session's
// vector backend from the freshly written rows.
func (sess *Session) RecomputeEmbeddings(ctx context.Context, notes []model.Note) (embedtext.Stats, error) {
	stats, err := sess.Computer.ComputeSessionEmbeddings(ctx, notes, sess.ID, sess.Date)
	if err != nil {
		return stats, err
	}

	hash := VaultStateHash(notes)
	if err := sess.Store.SetVaultStateHash(ctx, sess.ID, hash); err != nil {
		return stats, fmt.Errorf("recording vault state hash: %w", err)
	}

	if err := sess.Backend.LoadEmbeddings(ctx, sess.ID); err != nil {
		return stats, fmt.Errorf("loading session embeddings into backend: %w", err)
	}
	return stats, nil
}

// NeedsRecompute reports whether notes' current vault_state_hash differs
// from the one recorded on this session (or none was recorded yet).
func (sess *Session) NeedsRecompute(ctx context.Context, notes []model.Note) (bool, error) {
	stored, err := sess.Store.VaultStateHash(ctx, sess.ID)
	if err != nil {
		return false, err
	}
	if stored == "" {
		return true, nil
	}
	return stored != VaultStateHash(notes), nil
}

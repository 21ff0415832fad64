package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/model"
)

const timeLayout = time.RFC3339Nano

// UpsertNote replaces a note row and its links/tags. This is the "upsert
// means: replace the note row, delete then reinsert its links and tags"
// operation vault sync performs per changed file.
func (s *Store) UpsertNote(ctx context.Context, n model.Note) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertNoteTx(ctx, tx, n); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertNoteTx(ctx context.Context, tx *sql.Tx, n model.Note) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO notes (path, title, content, created, modified, file_mtime)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   title=excluded.title, content=excluded.content,
		   created=excluded.created, modified=excluded.modified,
		   file_mtime=excluded.file_mtime`,
		n.Path, n.Title, n.Content, n.Created.Format(timeLayout), n.Modified.Format(timeLayout), float64(n.Modified.UnixNano())/1e9,
	)
	if err != nil {
		return fmt.Errorf("upserting note %q: %w", n.Path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_path = ?`, n.Path); err != nil {
		return fmt.Errorf("clearing links for %q: %w", n.Path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE note_path = ?`, n.Path); err != nil {
		return fmt.Errorf("clearing tags for %q: %w", n.Path, err)
	}

	for _, l := range n.Links {
		embed := 0
		if l.IsEmbed {
			embed = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO links (source_path, target, display_text, is_embed, block_ref) VALUES (?, ?, ?, ?, ?)`,
			n.Path, l.Target, nullIfEmpty(l.DisplayText), embed, nullIfEmpty(l.BlockRef),
		); err != nil {
			return fmt.Errorf("inserting link for %q: %w", n.Path, err)
		}
	}

	for _, tag := range n.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (note_path, tag) VALUES (?, ?)`, n.Path, tag); err != nil {
			return fmt.Errorf("inserting tag for %q: %w", n.Path, err)
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// FileMtime returns the stored file_mtime for a path, used by vault sync's
// change-detection tolerance check. Returns (0, false) if the path is absent.
func (s *Store) FileMtime(ctx context.Context, path string) (float64, bool, error) {
	var mtime float64
	err := s.db.QueryRowContext(ctx, `SELECT file_mtime FROM notes WHERE path = ?`, path).Scan(&mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mtime, true, nil
}

// GetNote loads a single note by exact path, including its links and tags.
func (s *Store) GetNote(ctx context.Context, path string) (model.Note, error) {
	var n model.Note
	var created, modified string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, title, content, created, modified FROM notes WHERE path = ?`, path,
	).Scan(&n.Path, &n.Title, &n.Content, &created, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Note{}, ErrNotFound
	}
	if err != nil {
		return model.Note{}, err
	}
	n.Created, _ = time.Parse(timeLayout, created)
	n.Modified, _ = time.Parse(timeLayout, modified)

	n.Links, err = s.linksFor(ctx, path)
	if err != nil {
		return model.Note{}, err
	}
	n.Tags, err = s.tagsFor(ctx, path)
	if err != nil {
		return model.Note{}, err
	}
	populateVirtualFields(&n)
	return n, nil
}

// AllNotes batch-loads every note, its links, and its tags in three queries,
// ordered by path, mirroring the original's batch-then-assemble sync pattern.
func (s *Store) AllNotes(ctx context.Context) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, title, content, created, modified FROM notes ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		var n model.Note
		var created, modified string
		if err := rows.Scan(&n.Path, &n.Title, &n.Content, &created, &modified); err != nil {
			return nil, err
		}
		n.Created, _ = time.Parse(timeLayout, created)
		n.Modified, _ = time.Parse(timeLayout, modified)
		populateVirtualFields(&n)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	linkRows, err := s.db.QueryContext(ctx, `SELECT source_path, target, display_text, is_embed, block_ref FROM links`)
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()

	linksByPath := make(map[string][]model.Link)
	for linkRows.Next() {
		var source string
		var l model.Link
		var display, blockRef sql.NullString
		var embed int
		if err := linkRows.Scan(&source, &l.Target, &display, &embed, &blockRef); err != nil {
			return nil, err
		}
		l.DisplayText = display.String
		l.BlockRef = blockRef.String
		l.IsEmbed = embed != 0
		linksByPath[source] = append(linksByPath[source], l)
	}
	if err := linkRows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := s.db.QueryContext(ctx, `SELECT note_path, tag FROM tags ORDER BY note_path, tag`)
	if err != nil {
		return nil, err
	}
	defer tagRows.Close()

	tagsByPath := make(map[string][]string)
	for tagRows.Next() {
		var path, tag string
		if err := tagRows.Scan(&path, &tag); err != nil {
			return nil, err
		}
		tagsByPath[path] = append(tagsByPath[path], tag)
	}
	if err := tagRows.Err(); err != nil {
		return nil, err
	}

	for i := range notes {
		notes[i].Links = linksByPath[notes[i].Path]
		notes[i].Tags = tagsByPath[notes[i].Path]
	}
	return notes, nil
}

func (s *Store) linksFor(ctx context.Context, path string) ([]model.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT target, display_text, is_embed, block_ref FROM links WHERE source_path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.Link
	for rows.Next() {
		var l model.Link
		var display, blockRef sql.NullString
		var embed int
		if err := rows.Scan(&l.Target, &display, &embed, &blockRef); err != nil {
			return nil, err
		}
		l.DisplayText = display.String
		l.BlockRef = blockRef.String
		l.IsEmbed = embed != 0
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *Store) tagsFor(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM tags WHERE note_path = ? ORDER BY tag`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// populateVirtualFields derives IsVirtual/SourceFile/EntryDate from path
// shape for notes loaded back out of the store, since those fields are not
// persisted as separate columns — a virtual note's path is its source
// file's path, a '/', and its ISO date, so the last '/' is the separator.
func populateVirtualFields(n *model.Note) {
	for i := len(n.Path) - 1; i >= 0; i-- {
		if n.Path[i] == '/' {
			date := n.Path[i+1:]
			if t, err := time.Parse("2006-01-02", date); err == nil {
				n.IsVirtual = true
				n.SourceFile = n.Path[:i]
				n.EntryDate = t
			}
			return
		}
	}
}

// DeleteNotesNotIn removes every note whose path is not in keep, cascading
// to its links and tags. Used by vault sync after a full filesystem walk.
func (s *Store) DeleteNotesNotIn(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM notes`)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	placeholders := make([]byte, 0, len(keep)*2)
	args := make([]interface{}, len(keep))
	for i, p := range keep {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = p
	}
	query := fmt.Sprintf(`DELETE FROM notes WHERE path NOT IN (%s)`, string(placeholders))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

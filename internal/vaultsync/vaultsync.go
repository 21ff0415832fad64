// Package vaultsync walks a vault directory and synchronises its Markdown
// files into the store, splitting date-collection files into virtual notes.
package vaultsync

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/geistfabrik/geistfabrik/internal/datecollection"
	"github.com/geistfabrik/geistfabrik/internal/markdown"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// mtimeTolerance is the absolute tolerance, in seconds, below which a file's
// filesystem mtime is considered unchanged from the database's record.
const mtimeTolerance = 0.01

// DateCollectionOptions configures date-collection detection thresholds.
type DateCollectionOptions struct {
	Enabled     bool
	MinSections int
	Threshold   float64
}

// DefaultDateCollectionOptions matches the core's default config.
func DefaultDateCollectionOptions() DateCollectionOptions {
	return DateCollectionOptions{Enabled: true, MinSections: 2, Threshold: 0.5}
}

// Syncer walks a vault directory and upserts changed files into a Store.
type Syncer struct {
	VaultDir string
	Store    *store.Store
	DateOpts DateCollectionOptions
}

// New constructs a Syncer with default date-collection options.
func New(vaultDir string, s *store.Store) *Syncer {
	return &Syncer{VaultDir: vaultDir, Store: s, DateOpts: DefaultDateCollectionOptions()}
}

// Sync recursively walks VaultDir for .md files, upserting any that are new
// or changed (by mtime, within mtimeTolerance), then deletes any store rows
// whose path was not observed in this walk. Returns the number of source
// files processed (not counting virtual notes split from a single file).
func (sy *Syncer) Sync(ctx context.Context) (int, error) {
	existing, err := sy.Store.AllNotes(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading existing notes: %w", err)
	}
	// sourceMtime maps a source file's relative path to the file_mtime its
	// existing note rows were stored with — the regular note's own row for
	// non-date-collection files, or any of its virtual notes' shared
	// file_mtime for date-collection files.
	sourceMtime := make(map[string]float64, len(existing))
	sourcePaths := make(map[string][]string, len(existing))
	for _, n := range existing {
		key := n.Path
		if n.IsVirtual {
			key = n.SourceFile
		}
		sourcePaths[key] = append(sourcePaths[key], n.Path)
		sourceMtime[key] = float64(n.Modified.UnixNano()) / 1e9
	}

	var observed []string
	processed := 0

	err = filepath.WalkDir(sy.VaultDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		relPath, err := filepath.Rel(sy.VaultDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		fileMtime := float64(info.ModTime().UnixNano()) / 1e9

		if dbMtime, ok := sourceMtime[relPath]; ok && math.Abs(dbMtime-fileMtime) < mtimeTolerance {
			observed = append(observed, sourcePaths[relPath]...)
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "geistfabrik: skipping %s: %v\n", relPath, err)
			return nil
		}
		if !utf8.Valid(raw) {
			fmt.Fprintf(os.Stderr, "geistfabrik: skipping %s: not valid UTF-8\n", relPath)
			return nil
		}
		content := string(raw)

		notes, newPaths, err := sy.notesFor(relPath, content, info)
		if err != nil {
			return err
		}
		observed = append(observed, newPaths...)

		for _, n := range notes {
			if err := sy.Store.UpsertNote(ctx, n); err != nil {
				return fmt.Errorf("upserting %q: %w", n.Path, err)
			}
		}
		processed++
		return nil
	})
	if err != nil {
		return processed, err
	}

	if _, err := sy.Store.DeleteNotesNotIn(ctx, observed); err != nil {
		return processed, fmt.Errorf("pruning stale notes: %w", err)
	}
	return processed, nil
}

func (sy *Syncer) notesFor(relPath, content string, info fs.FileInfo) ([]model.Note, []string, error) {
	if sy.DateOpts.Enabled {
		_, clean, _, _ := markdown.Parse(relPath, content)
		if datecollection.IsDateCollection(clean, sy.DateOpts.MinSections, sy.DateOpts.Threshold) {
			virtuals := datecollection.Split(relPath, content, info.ModTime())
			if len(virtuals) > 0 {
				paths := make([]string, len(virtuals))
				for i, v := range virtuals {
					paths[i] = v.Path
				}
				return virtuals, paths, nil
			}
		}
	}

	title, clean, links, tags := markdown.Parse(relPath, content)
	n := model.Note{
		Path:     relPath,
		Title:    title,
		Content:  clean,
		Links:    links,
		Tags:     tags,
		Created:  creationTime(info),
		Modified: info.ModTime(),
	}
	return []model.Note{n}, []string{relPath}, nil
}

// creationTime approximates file creation time; Go's fs.FileInfo has no
// portable ctime/birthtime, so modification time is used as a fallback.
func creationTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}

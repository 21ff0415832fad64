// Package geistlog assembles a structured record of one session run:
// per-geist execution outcomes, suggestion counts before/after filtering,
// and any metadata-module issues, with the run's start time, finish time
// and total duration.
package geistlog

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/geist"
	"github.com/geistfabrik/geistfabrik/internal/metadata"
)

// Summary is the full structured log for one run.
type Summary struct {
	SessionDate            string            `json:"session_date"`
	Started                time.Time         `json:"started"`
	Finished               time.Time         `json:"finished"`
	Duration               time.Duration     `json:"duration"`
	GeistRecords           []geist.LogRecord `json:"geist_records"`
	SuggestionsGenerated   int               `json:"suggestions_generated"`
	SuggestionsAfterFilter int               `json:"suggestions_after_filter"`
	MetadataIssues         []metadata.Issue  `json:"metadata_issues,omitempty"`
}

// Logger accumulates a Summary across a run's stages.
type Logger struct {
	summary Summary
}

// New starts a Logger for sessionDate, stamping Started as now.
func New(sessionDate string, now time.Time) *Logger {
	return &Logger{summary: Summary{SessionDate: sessionDate, Started: now}}
}

// Finish stamps Finished and Duration.
func (l *Logger) Finish(now time.Time) {
	l.summary.Finished = now
	l.summary.Duration = now.Sub(l.summary.Started)
}

// RecordGeistRun appends the per-geist execution log and tallies how many
// suggestions were generated in total before filtering.
func (l *Logger) RecordGeistRun(records []geist.LogRecord) {
	l.summary.GeistRecords = append(l.summary.GeistRecords, records...)
	for _, r := range records {
		l.summary.SuggestionsGenerated += r.Count
	}
}

// RecordFilteredCount sets how many suggestions survived the filter
// pipeline.
func (l *Logger) RecordFilteredCount(n int) {
	l.summary.SuggestionsAfterFilter = n
}

// RecordMetadataIssues appends per-note metadata module issues.
func (l *Logger) RecordMetadataIssues(issues []metadata.Issue) {
	l.summary.MetadataIssues = append(l.summary.MetadataIssues, issues...)
}

// Summary returns the accumulated log.
func (l *Logger) Summary() Summary {
	return l.summary
}

// WriteJSON writes the summary as indented JSON.
func (l *Logger) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l.summary)
}

// WriteText writes a short human-readable summary.
func (l *Logger) WriteText(w io.Writer) error {
	s := l.summary
	_, err := fmt.Fprintf(w, "session %s: %d geists run, %d suggestions generated, %d survived filtering (%v)\n",
		s.SessionDate, len(s.GeistRecords), s.SuggestionsGenerated, s.SuggestionsAfterFilter, s.Duration)
	return err
}

package geistlog

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/geist"
	"github.com/geistfabrik/geistfabrik/internal/metadata"
)

func TestLogger_AccumulatesAndFinishes(t *testing.T) {
	start := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	l := New("2026-07-30", start)

	l.RecordGeistRun([]geist.LogRecord{
		{GeistID: "g1", Status: geist.StatusSuccess, Count: 3},
		{GeistID: "g2", Status: geist.StatusError},
	})
	l.RecordMetadataIssues([]metadata.Issue{{ModuleID: "m1", Status: metadata.IssueError, Detail: "boom"}})
	l.RecordFilteredCount(2)

	finish := start.Add(5 * time.Second)
	l.Finish(finish)

	summary := l.Summary()
	if summary.SuggestionsGenerated != 3 {
		t.Errorf("expected 3 suggestions generated, got %d", summary.SuggestionsGenerated)
	}
	if summary.SuggestionsAfterFilter != 2 {
		t.Errorf("expected 2 after filter, got %d", summary.SuggestionsAfterFilter)
	}
	if summary.Duration != 5*time.Second {
		t.Errorf("expected duration 5s, got %v", summary.Duration)
	}
	if len(summary.MetadataIssues) != 1 {
		t.Errorf("expected 1 metadata issue, got %d", len(summary.MetadataIssues))
	}
}

func TestLogger_WriteJSON(t *testing.T) {
	l := New("2026-07-30", time.Now())
	var buf bytes.Buffer
	if err := l.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"session_date": "2026-07-30"`) {
		t.Errorf("expected session_date in JSON output, got %s", buf.String())
	}
}

func TestLogger_WriteText(t *testing.T) {
	l := New("2026-07-30", time.Now())
	l.RecordFilteredCount(4)
	var buf bytes.Buffer
	if err := l.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !strings.Contains(buf.String(), "2026-07-30") || !strings.Contains(buf.String(), "4 survived") {
		t.Errorf("unexpected text output: %s", buf.String())
	}
}

// Package datecollection detects journal-style Markdown files whose
// second-level headings are predominantly dates, and splits them into one
// virtual note per distinct date.
package datecollection

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/markdown"
	"github.com/geistfabrik/geistfabrik/internal/model"
)

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

type datePattern struct {
	re    *regexp.Regexp
	parse func(groups []string) (time.Time, bool)
}

var datePatterns = []datePattern{
	// ISO date: 2025-01-15
	{regexp.MustCompile(`(?i)^##\s+(\d{4})-(\d{2})-(\d{2})\s*$`), isoDate},
	// ISO datetime: 2025-01-15T09:00:00
	{regexp.MustCompile(`(?i)^##\s+(\d{4})-(\d{2})-(\d{2})T\d{2}:\d{2}:\d{2}\s*$`), isoDate},
	// US format: 01/15/2025
	{regexp.MustCompile(`(?i)^##\s+(\d{2})/(\d{2})/(\d{4})\s*$`), usDate},
	// EU format: 15.01.2025
	{regexp.MustCompile(`(?i)^##\s+(\d{2})\.(\d{2})\.(\d{4})\s*$`), euDate},
	// Long format with weekday: Monday, January 15, 2025
	{regexp.MustCompile(`(?i)^##\s+(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday),?\s+` +
		`(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})\s*$`), longDate},
	// Long format without weekday: January 15, 2025
	{regexp.MustCompile(`(?i)^##\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})\s*$`), longDate},
	// Year Month Day: 2022 August 8
	{regexp.MustCompile(`(?i)^##\s+(\d{4})\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2})\s*$`), yearMonthDay},
}

func isoDate(g []string) (time.Time, bool) {
	y, _ := strconv.Atoi(g[0])
	m, _ := strconv.Atoi(g[1])
	d, _ := strconv.Atoi(g[2])
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}

func usDate(g []string) (time.Time, bool) {
	mm, _ := strconv.Atoi(g[0])
	dd, _ := strconv.Atoi(g[1])
	yyyy, _ := strconv.Atoi(g[2])
	return time.Date(yyyy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), true
}

func euDate(g []string) (time.Time, bool) {
	dd, _ := strconv.Atoi(g[0])
	mm, _ := strconv.Atoi(g[1])
	yyyy, _ := strconv.Atoi(g[2])
	return time.Date(yyyy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC), true
}

func longDate(g []string) (time.Time, bool) {
	month, ok := months[strings.ToLower(g[0])]
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(g[1])
	y, _ := strconv.Atoi(g[2])
	return time.Date(y, month, d, 0, 0, 0, 0, time.UTC), true
}

func yearMonthDay(g []string) (time.Time, bool) {
	y, _ := strconv.Atoi(g[0])
	month, ok := months[strings.ToLower(g[1])]
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(g[2])
	return time.Date(y, month, d, 0, 0, 0, 0, time.UTC), true
}

// heading is an H2 heading line and its 1-indexed line number.
type heading struct {
	text string
	line int
}

// ParseDateHeading parses a "## ..." line into a date if it matches one of
// the recognised forms, or returns ok=false otherwise.
func ParseDateHeading(line string) (t time.Time, ok bool) {
	line = strings.TrimSpace(line)
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if t, ok := p.parse(m[1:]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractH2Headings returns every "## " heading line (excluding "### " and
// deeper), in source order. Headings inside fenced code blocks are NOT
// excluded — a known limitation inherited from the baseline algorithm.
func extractH2Headings(content string) []heading {
	var out []heading
	for i, line := range strings.Split(content, "\n") {
		s := strings.TrimSpace(line)
		if strings.HasPrefix(s, "## ") && !strings.HasPrefix(s, "### ") {
			out = append(out, heading{text: s, line: i + 1})
		}
	}
	return out
}

// IsDateCollection reports whether content should be treated as a
// date-collection file: at least minSections H2 headings exist, and at
// least threshold fraction of them parse as dates.
func IsDateCollection(content string, minSections int, threshold float64) bool {
	headings := extractH2Headings(content)
	if len(headings) < minSections {
		return false
	}
	dateCount := 0
	for _, h := range headings {
		if _, ok := ParseDateHeading(h.text); ok {
			dateCount++
		}
	}
	return float64(dateCount) >= float64(len(headings))*threshold
}

type dateSection struct {
	heading   string
	entryDate time.Time
	content   string
}

func splitByDateHeadings(content string) []dateSection {
	lines := strings.Split(content, "\n")
	headings := extractH2Headings(content)

	type dh struct {
		text  string
		line  int
		idx   int
		date  time.Time
	}
	var dateHeadings []dh
	for _, h := range headings {
		if t, ok := ParseDateHeading(h.text); ok {
			dateHeadings = append(dateHeadings, dh{text: h.text, line: h.line, idx: h.line - 1, date: t})
		}
	}
	if len(dateHeadings) == 0 {
		return nil
	}

	var sections []dateSection
	for i, d := range dateHeadings {
		endIdx := len(lines)
		if i+1 < len(dateHeadings) {
			endIdx = dateHeadings[i+1].idx
		}
		body := strings.TrimSpace(strings.Join(lines[d.idx+1:endIdx], "\n"))
		if body == "" {
			continue
		}
		sections = append(sections, dateSection{heading: d.text, entryDate: d.date, content: body})
	}
	return sections
}

// Split splits a date-collection file's raw text into one virtual note per
// distinct date found among its H2 headings. Frontmatter tags are merged
// into every resulting note; links and tags are otherwise extracted from
// each entry's own merged body.
func Split(sourceFile, rawText string, fileModified time.Time) []model.Note {
	frontmatterTags := markdown.FrontmatterTags(rawText)
	_, cleanContent, _, _ := markdown.Parse(sourceFile, rawText)

	sections := splitByDateHeadings(cleanContent)
	if len(sections) == 0 {
		return nil
	}

	type merged struct {
		bodies  []string
		heading string
	}
	byDate := map[string]*merged{}
	var order []string
	for _, s := range sections {
		key := s.entryDate.Format("2006-01-02")
		m, ok := byDate[key]
		if !ok {
			m = &merged{heading: strings.TrimSpace(strings.TrimLeft(s.heading, "#"))}
			byDate[key] = m
			order = append(order, key)
		}
		m.bodies = append(m.bodies, s.content)
	}
	sort.Strings(order)

	var notes []model.Note
	for _, key := range order {
		m := byDate[key]
		entryDate, _ := time.Parse("2006-01-02", key)
		mergedContent := strings.Join(m.bodies, "\n\n")

		_, _, links, inlineTags := markdown.Parse(sourceFile, mergedContent)
		tags := unionTags(frontmatterTags, inlineTags)

		notes = append(notes, model.Note{
			Path:       fmt.Sprintf("%s/%s", sourceFile, key),
			Title:      m.heading,
			Content:    mergedContent,
			Links:      links,
			Tags:       tags,
			Created:    entryDate,
			Modified:   fileModified,
			IsVirtual:  true,
			SourceFile: sourceFile,
			EntryDate:  entryDate,
		})
	}
	return notes
}

func unionTags(a, b []string) []string {
	set := map[string]struct{}{}
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		set[t] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

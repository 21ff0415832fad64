// Package model defines the immutable value types shared across GeistFabrik's
// analytic pipeline: links, notes, suggestions, and geist metadata.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Link is a single wiki-style reference extracted from a note's content.
// Equality and hashing are structural (all fields).
type Link struct {
	Target      string
	DisplayText string
	IsEmbed     bool
	BlockRef    string
}

// Note is a single addressable unit of content: either a regular file-backed
// note or a virtual note synthesised by splitting a date-collection file.
type Note struct {
	Path     string
	Title    string
	Content  string
	Links    []Link
	Tags     []string
	Created  time.Time
	Modified time.Time

	IsVirtual  bool
	SourceFile string
	EntryDate  time.Time
}

// ObsidianLink returns the canonical wiki-link target string for this note.
// It is derived, never stored: regular notes use their title; virtual notes
// use "<stem(source_file)>#<title>" so the link resolves to the heading
// anchor in the original journal file.
func (n Note) ObsidianLink() string {
	if !n.IsVirtual {
		return n.Title
	}
	return fmt.Sprintf("%s#%s", stemOf(n.SourceFile), n.Title)
}

func stemOf(path string) string {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// Equal compares two notes by path, the note's unique key.
func (n Note) Equal(other Note) bool {
	return n.Path == other.Path
}

// Suggestion is an immutable provocation emitted by a geist: short text
// plus the notes it references, always as ObsidianLink strings.
type Suggestion struct {
	Text    string
	Notes   []string
	GeistID string
	Title   string
}

// GeistKind distinguishes code geists (Go-native callables) from grammar
// geists (declarative Tracery-style documents).
type GeistKind int

const (
	KindCode GeistKind = iota
	KindGrammar
)

func (k GeistKind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindGrammar:
		return "grammar"
	default:
		return "unknown"
	}
}

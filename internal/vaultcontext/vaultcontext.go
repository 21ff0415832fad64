// Package vaultcontext implements the analytic surface presented to
// geists: memoised notes, similarity, graph, and metadata queries layered
// over a Session's store and vector backend.
package vaultcontext

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/metadata"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/session"
	"github.com/geistfabrik/geistfabrik/internal/store"
)

// ScoredNote pairs a note with a similarity score, returned by
// NeighboursScored so callers don't re-pay the similarity cost.
type ScoredNote struct {
	Note  model.Note
	Score float64
}

// Context is the read-only analytic surface handed to each geist
// invocation. Its caches are session-scoped and never shared across
// Context instances.
type Context struct {
	ctx      context.Context
	Store    *store.Store
	Session  *session.Session
	Registry *hostfunc.Registry
	Analyser *metadata.Analyser // nil if no metadata modules are configured

	// mu guards every field below. A geist whose Suggest call exceeds the
	// executor's timeout is abandoned, not killed (see geist.ExecuteGeist),
	// and may keep running against this same Context after the executor has
	// moved on to the next geist; without a lock that race is a concurrent
	// map write.
	mu   sync.Mutex
	rng  *rand.Rand
	seed int64

	notesOnce  bool
	notes      []model.Note
	noteByPath map[string]model.Note

	neighboursCache map[string][]ScoredNote
	similarityCache map[string]float64
	backlinksCache  map[string][]model.Note
	outgoingCache   map[string][]model.Note
	graphCache      map[string][]model.Note
	metadataCache   map[string]map[string]interface{}
}

// New constructs a Context. When seed is nil, it derives from the
// session's date as YYYYMMDD so the same vault on the same date always
// produces identical outputs.
func New(ctx context.Context, s *store.Store, sess *session.Session, registry *hostfunc.Registry, analyser *metadata.Analyser, seed *int64) *Context {
	var seedVal int64
	if seed != nil {
		seedVal = *seed
	} else {
		seedVal = dateSeed(sess.Date)
	}
	return &Context{
		ctx:             ctx,
		Store:           s,
		Session:         sess,
		Registry:        registry,
		Analyser:        analyser,
		rng:             rand.New(rand.NewSource(seedVal)),
		seed:            seedVal,
		neighboursCache: make(map[string][]ScoredNote),
		similarityCache: make(map[string]float64),
		backlinksCache:  make(map[string][]model.Note),
		outgoingCache:   make(map[string][]model.Note),
		graphCache:      make(map[string][]model.Note),
		metadataCache:   make(map[string]map[string]interface{}),
	}
}

func dateSeed(d time.Time) int64 {
	v, _ := strconv.ParseInt(d.Format("20060102"), 10, 64)
	return v
}

// Notes returns all notes for this session, cached on first call.
func (c *Context) Notes() []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notesLocked()
}

func (c *Context) notesLocked() []model.Note {
	if !c.notesOnce {
		notes, err := c.Store.AllNotes(c.ctx)
		if err != nil {
			notes = nil
		}
		c.notes = notes
		c.noteByPath = make(map[string]model.Note, len(notes))
		for _, n := range notes {
			c.noteByPath[n.Path] = n
		}
		c.notesOnce = true
	}
	return c.notes
}

// GetNote performs an exact-path lookup, returning ok=false if absent.
func (c *Context) GetNote(path string) (model.Note, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notesLocked()
	n, ok := c.noteByPath[path]
	return n, ok
}

// Seed returns the RNG seed this Context was constructed with.
func (c *Context) Seed() int64 {
	return c.seed
}

// Resolves reports whether target names a known note, trying the same
// path/path+".md"/title resolution as link resolution. Used by the
// suggestion boundary filter to reject references to nonexistent notes.
func (c *Context) Resolves(target string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resolveTargetLocked(target)
	return ok
}

// resolveTargetLocked resolves a textual link target to a note by trying,
// in order: exact path match; path+".md"; ObsidianLink match (covers
// virtual notes, whose link is "<stem>#<heading>" and matches neither
// their path nor title); title match (first match by path order wins).
// Returns ok=false if nothing resolves — never a fabricated note. Callers
// must hold c.mu.
func (c *Context) resolveTargetLocked(target string) (model.Note, bool) {
	c.notesLocked()
	if n, ok := c.noteByPath[target]; ok {
		return n, true
	}
	if n, ok := c.noteByPath[target+".md"]; ok {
		return n, true
	}
	for _, n := range c.notes {
		if n.ObsidianLink() == target {
			return n, true
		}
	}
	for _, n := range c.notes {
		if n.Title == target {
			return n, true
		}
	}
	return model.Note{}, false
}

// Neighbours returns up to k notes with highest cosine similarity to
// note, excluding itself.
func (c *Context) Neighbours(note model.Note, k int) []model.Note {
	scored := c.NeighboursScored(note, k)
	out := make([]model.Note, len(scored))
	for i, s := range scored {
		out[i] = s.Note
	}
	return out
}

// NeighboursScored is Neighbours with similarity scores attached, so
// callers don't re-pay the similarity cost. Cached by (path, k).
func (c *Context) NeighboursScored(note model.Note, k int) []ScoredNote {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("%s\x00%d", note.Path, k)
	if cached, ok := c.neighboursCache[key]; ok {
		return cached
	}

	query, err := c.Session.Backend.GetEmbedding(note.Path)
	if err != nil {
		c.neighboursCache[key] = nil
		return nil
	}
	matches := c.Session.Backend.FindSimilar(query, -1)

	c.notesLocked()
	out := make([]ScoredNote, 0, k)
	for _, m := range matches {
		if m.Path == note.Path {
			continue
		}
		n, ok := c.noteByPath[m.Path]
		if !ok {
			continue
		}
		out = append(out, ScoredNote{Note: n, Score: m.Score})
		if len(out) == k {
			break
		}
	}
	c.neighboursCache[key] = out
	return out
}

// Similarity returns the cosine similarity of a and b's session vectors,
// cached by the unordered pair of paths.
func (c *Context) Similarity(a, b model.Note) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.similarityLocked(a, b)
}

func (c *Context) similarityLocked(a, b model.Note) (float64, error) {
	key := pairKey(a.Path, b.Path)
	if cached, ok := c.similarityCache[key]; ok {
		return cached, nil
	}
	sim, err := c.Session.Backend.GetSimilarity(a.Path, b.Path)
	if err != nil {
		return 0, err
	}
	c.similarityCache[key] = sim
	return sim, nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Backlinks returns notes whose stored link target equals note's path, its
// path without extension, or its title. Cached by path.
func (c *Context) Backlinks(note model.Note) []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backlinksLocked(note)
}

func (c *Context) backlinksLocked(note model.Note) []model.Note {
	if cached, ok := c.backlinksCache[note.Path]; ok {
		return cached
	}
	stem := strings.TrimSuffix(note.Path, ".md")

	var out []model.Note
	seen := make(map[string]bool)
	for _, n := range c.notesLocked() {
		for _, l := range n.Links {
			if l.Target == note.Path || l.Target == stem || l.Target == note.Title {
				if !seen[n.Path] {
					seen[n.Path] = true
					out = append(out, n)
				}
				break
			}
		}
	}
	c.backlinksCache[note.Path] = out
	return out
}

// OutgoingLinks resolves each of note.Links via link-target resolution,
// deduplicated on path and preserving source order. Cached.
func (c *Context) OutgoingLinks(note model.Note) []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outgoingLinksLocked(note)
}

func (c *Context) outgoingLinksLocked(note model.Note) []model.Note {
	if cached, ok := c.outgoingCache[note.Path]; ok {
		return cached
	}
	var out []model.Note
	seen := make(map[string]bool)
	for _, l := range note.Links {
		target, ok := c.resolveTargetLocked(l.Target)
		if !ok || seen[target.Path] {
			continue
		}
		seen[target.Path] = true
		out = append(out, target)
	}
	c.outgoingCache[note.Path] = out
	return out
}

// GraphNeighbors is the union of Backlinks and OutgoingLinks. Cached.
func (c *Context) GraphNeighbors(note model.Note) []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graphNeighborsLocked(note)
}

func (c *Context) graphNeighborsLocked(note model.Note) []model.Note {
	if cached, ok := c.graphCache[note.Path]; ok {
		return cached
	}
	seen := make(map[string]bool)
	var out []model.Note
	for _, n := range c.backlinksLocked(note) {
		if !seen[n.Path] {
			seen[n.Path] = true
			out = append(out, n)
		}
	}
	for _, n := range c.outgoingLinksLocked(note) {
		if !seen[n.Path] {
			seen[n.Path] = true
			out = append(out, n)
		}
	}
	c.graphCache[note.Path] = out
	return out
}

// Orphans returns notes with no incoming or outgoing resolvable links, up
// to k (k<0 means unbounded).
func (c *Context) Orphans(k int) []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.Note
	for _, n := range c.notesLocked() {
		if len(c.graphNeighborsLocked(n)) == 0 {
			out = append(out, n)
			if k >= 0 && len(out) == k {
				break
			}
		}
	}
	return out
}

// Hubs returns the k notes with the highest incoming-link count, ordered
// descending.
func (c *Context) Hubs(k int) []model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()

	type counted struct {
		note  model.Note
		count int
	}
	notes := c.notesLocked()
	counts := make([]counted, 0, len(notes))
	for _, n := range notes {
		counts = append(counts, counted{note: n, count: len(c.backlinksLocked(n))})
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	if k >= 0 && k < len(counts) {
		counts = counts[:k]
	}
	out := make([]model.Note, len(counts))
	for i, cnt := range counts {
		out[i] = cnt.note
	}
	return out
}

// UnlinkedPairs returns the top-k pairs with highest similarity and no
// direct link between them.
func (c *Context) UnlinkedPairs(k int) [][2]model.Note {
	c.mu.Lock()
	defer c.mu.Unlock()

	notes := c.notesLocked()
	type scoredPair struct {
		pair  [2]model.Note
		score float64
	}
	var candidates []scoredPair
	for i := 0; i < len(notes); i++ {
		for j := i + 1; j < len(notes); j++ {
			a, b := notes[i], notes[j]
			if len(linksBetween(a, b)) > 0 {
				continue
			}
			sim, err := c.similarityLocked(a, b)
			if err != nil {
				continue
			}
			candidates = append(candidates, scoredPair{pair: [2]model.Note{a, b}, score: sim})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if k >= 0 && k < len(candidates) {
		candidates = candidates[:k]
	}
	out := make([][2]model.Note, len(candidates))
	for i, cand := range candidates {
		out[i] = cand.pair
	}
	return out
}

// LinksBetween returns all links from a->b or b->a, matching target
// against (path, stem, title). Reads only its arguments, not Context
// state, so it needs no lock.
func (c *Context) LinksBetween(a, b model.Note) []model.Link {
	return linksBetween(a, b)
}

func linksBetween(a, b model.Note) []model.Link {
	var out []model.Link
	out = append(out, linksTo(a, b)...)
	out = append(out, linksTo(b, a)...)
	return out
}

func linksTo(from, to model.Note) []model.Link {
	stem := strings.TrimSuffix(to.Path, ".md")
	var out []model.Link
	for _, l := range from.Links {
		if l.Target == to.Path || l.Target == stem || l.Target == to.Title {
			out = append(out, l)
		}
	}
	return out
}

// OldNotes returns the k notes with the oldest Modified time.
func (c *Context) OldNotes(k int) []model.Note {
	return sortedByModified(c.Notes(), k, true)
}

// RecentNotes returns the k notes with the most recent Modified time.
func (c *Context) RecentNotes(k int) []model.Note {
	return sortedByModified(c.Notes(), k, false)
}

func sortedByModified(notes []model.Note, k int, ascending bool) []model.Note {
	out := make([]model.Note, len(notes))
	copy(out, notes)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].Modified.Before(out[j].Modified)
		}
		return out[i].Modified.After(out[j].Modified)
	})
	if k >= 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// Metadata returns built-in attributes (word_count, link_count, tag_count,
// age_days) plus any values contributed by the configured Analyser,
// cached per note. The Analyser is called outside the lock since it may
// itself call back into Context (e.g. Neighbours), which would otherwise
// deadlock against a non-reentrant mutex.
func (c *Context) Metadata(note model.Note) map[string]interface{} {
	c.mu.Lock()
	if cached, ok := c.metadataCache[note.Path]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	m := map[string]interface{}{
		"word_count": len(strings.Fields(note.Content)),
		"link_count": len(note.Links),
		"tag_count":  len(note.Tags),
		"age_days":   int(time.Since(note.Created).Hours() / 24),
	}
	if c.Analyser != nil {
		for k, v := range c.Analyser.Infer(note, c) {
			m[k] = v
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.metadataCache[note.Path]; ok {
		return cached
	}
	c.metadataCache[note.Path] = m
	return m
}

// Sample returns a deterministic sample of k notes using the session RNG.
// If len(notes) <= k, all notes are returned.
func (c *Context) Sample(notes []model.Note, k int) []model.Note {
	if k < 0 || k >= len(notes) {
		out := make([]model.Note, len(notes))
		copy(out, notes)
		return out
	}
	c.mu.Lock()
	idx := c.rng.Perm(len(notes))[:k]
	c.mu.Unlock()
	out := make([]model.Note, k)
	for i, p := range idx {
		out[i] = notes[p]
	}
	return out
}

// RegisterFunction registers a host function under name.
func (c *Context) RegisterFunction(name string, fn hostfunc.Func) error {
	return c.Registry.Register(name, fn)
}

// CallFunction dispatches to the host-function registry, passing this
// Context as the function's Vault argument.
func (c *Context) CallFunction(name string, args ...string) (interface{}, error) {
	return c.Registry.Call(c, name, args...)
}

// SampleNotes, and Neighbors below, together with the OldNotes/RecentNotes/
// Orphans/Hubs methods above, satisfy hostfunc.Vault — letting built-in
// host functions (and grammar $vault.* calls) operate against this Context
// without hostfunc importing vaultcontext.

// SampleNotes returns a deterministic sample of k notes from the full
// session note set.
func (c *Context) SampleNotes(k int) []model.Note { return c.Sample(c.Notes(), k) }

// Neighbors resolves path to a note and returns its k nearest neighbours.
func (c *Context) Neighbors(path string, k int) []model.Note {
	n, ok := c.GetNote(path)
	if !ok {
		return nil
	}
	return c.Neighbours(n, k)
}

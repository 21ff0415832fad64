// Package geist discovers, loads, and executes geists: small units that
// inspect a vault and propose suggestions. Code geists are Go plugins
// exposing a Suggest symbol; grammar geists are YAML documents interpreted
// by the grammar package. Each geist carries a failure count and
// auto-disables after repeated failures.
package geist

import (
	"context"
	"fmt"
	"math/rand"
	"plugin"
	"sort"
	"sync"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/grammar"
	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/vaultcontext"
)

// State is a geist's lifecycle state.
type State int

const (
	Loaded State = iota
	Enabled
	Failing
	Disabled
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Enabled:
		return "enabled"
	case Failing:
		return "failing"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// SuggestFunc is a loaded geist's suggestion entry point.
type SuggestFunc func(vc *vaultcontext.Context) ([]model.Suggestion, error)

// Geist is one loaded unit: either a code geist (backed by a Go plugin) or
// a grammar geist (backed by a grammar.Document).
type Geist struct {
	ID           string
	Kind         model.GeistKind
	Path         string
	Suggest      SuggestFunc
	State        State
	FailureCount int
}

// Status is one line of the structured execution log.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusLoadError Status = "load_error"
	StatusSkipped   Status = "skipped"
	StatusDisabled  Status = "disabled"
)

// LogRecord records one geist execution attempt.
type LogRecord struct {
	GeistID string
	Status  Status
	Detail  string
	Count   int
	At      time.Time
}

// Executor discovers, loads, and runs geists against a vault.
type Executor struct {
	mu          sync.Mutex
	Timeout     time.Duration
	MaxFailures int
	Order       []string // config-defined execution order, checked first
	geists      map[string]*Geist
	Log         []LogRecord
}

// DefaultTimeout and DefaultMaxFailures match spec defaults.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxFailures = 3
)

// NewExecutor constructs an Executor with the given timeout and failure
// threshold. A zero timeout or non-positive maxFailures falls back to the
// package defaults.
func NewExecutor(timeout time.Duration, maxFailures int) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Executor{Timeout: timeout, MaxFailures: maxFailures, geists: make(map[string]*Geist)}
}

// Register adds g, keyed by g.ID. A duplicate ID is an error; geist ids
// must be unique across all loaded geists.
func (e *Executor) Register(g *Geist) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.geists[g.ID]; exists {
		return fmt.Errorf("geist: duplicate geist id %q", g.ID)
	}
	e.geists[g.ID] = g
	return nil
}

// Get returns the geist registered under id, if any.
func (e *Executor) Get(id string) (*Geist, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.geists[id]
	return g, ok
}

// IDs returns every registered geist id in deterministic order: ids
// present in Order first (in that order), then any remaining ids sorted
// lexicographically.
func (e *Executor) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderedIDsLocked()
}

func (e *Executor) orderedIDsLocked() []string {
	seen := make(map[string]bool, len(e.geists))
	ordered := make([]string, 0, len(e.geists))
	for _, id := range e.Order {
		if _, ok := e.geists[id]; ok && !seen[id] {
			ordered = append(ordered, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range e.geists {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// ExecuteGeist runs one geist's Suggest function under a timeout, updating
// its state and failure count, and appending a LogRecord. It never panics
// or returns an error itself; failures are reflected in the returned log
// record's Status.
func (e *Executor) ExecuteGeist(parent context.Context, id string, vc *vaultcontext.Context) ([]model.Suggestion, LogRecord) {
	e.mu.Lock()
	g, ok := e.geists[id]
	e.mu.Unlock()
	if !ok {
		rec := LogRecord{GeistID: id, Status: StatusLoadError, Detail: "not registered", At: time.Now()}
		e.appendLog(rec)
		return nil, rec
	}

	e.mu.Lock()
	if g.State == Disabled {
		e.mu.Unlock()
		rec := LogRecord{GeistID: id, Status: StatusDisabled, At: time.Now()}
		e.appendLog(rec)
		return nil, rec
	}
	e.mu.Unlock()

	type result struct {
		suggestions []model.Suggestion
		err         error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		s, err := g.Suggest(vc)
		done <- result{suggestions: s, err: err}
	}()

	var rec LogRecord
	var suggestions []model.Suggestion

	select {
	case r := <-done:
		if r.err != nil {
			rec = LogRecord{GeistID: id, Status: StatusError, Detail: r.err.Error(), At: time.Now()}
			e.recordFailure(g)
		} else {
			rec = LogRecord{GeistID: id, Status: StatusSuccess, Count: len(r.suggestions), At: time.Now()}
			e.recordSuccess(g)
			suggestions = r.suggestions
		}
	case <-time.After(e.Timeout):
		rec = LogRecord{GeistID: id, Status: StatusTimeout, Detail: fmt.Sprintf("exceeded %v", e.Timeout), At: time.Now()}
		e.recordFailure(g)
		// The goroutine above is abandoned here, not killed: Go has no
		// preemptive cancellation for a plain function call. It may still be
		// running g.Suggest(vc) against vc after we return, racing whatever
		// geist runs next in the same ExecuteAll call. vaultcontext.Context
		// guards its memoised caches with its own mutex precisely so that
		// race can't corrupt shared state; it can only waste CPU and
		// eventually write to a channel nothing reads.
	case <-parent.Done():
		rec = LogRecord{GeistID: id, Status: StatusSkipped, Detail: parent.Err().Error(), At: time.Now()}
	}

	e.appendLog(rec)
	return suggestions, rec
}

func (e *Executor) recordFailure(g *Geist) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g.FailureCount++
	if g.FailureCount >= e.MaxFailures {
		g.State = Disabled
	} else {
		g.State = Failing
	}
}

func (e *Executor) recordSuccess(g *Geist) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g.FailureCount = 0
	g.State = Enabled
}

func (e *Executor) appendLog(rec LogRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Log = append(e.Log, rec)
}

// ExecuteAll runs every registered geist in deterministic order, returning
// the suggestions keyed by geist id.
func (e *Executor) ExecuteAll(ctx context.Context, vc *vaultcontext.Context) map[string][]model.Suggestion {
	out := make(map[string][]model.Suggestion)
	for _, id := range e.IDs() {
		suggestions, rec := e.ExecuteGeist(ctx, id, vc)
		if rec.Status == StatusSuccess {
			out[id] = suggestions
		}
	}
	return out
}

// loadCodeGeist opens a Go plugin at path and looks up its Suggest symbol.
// Any failure (open error, missing symbol, wrong type) is returned as an
// error rather than panicking; the caller logs it as load_error and
// continues with the remaining geists.
func loadCodeGeist(id, path string) (*Geist, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geist: opening plugin %s: %w", path, err)
	}
	sym, err := p.Lookup("Suggest")
	if err != nil {
		return nil, fmt.Errorf("geist: plugin %s has no Suggest symbol: %w", path, err)
	}
	fn, ok := sym.(func(*vaultcontext.Context) ([]model.Suggestion, error))
	if !ok {
		return nil, fmt.Errorf("geist: plugin %s's Suggest has the wrong signature", path)
	}
	return &Geist{ID: id, Kind: model.KindCode, Path: path, Suggest: fn, State: Loaded}, nil
}

// loadGrammarGeist parses a grammar document at path and wraps it with a
// per-invocation Engine bound to vault and registry. rngForSeed produces a
// fresh, independently-seeded RNG on every Suggest call (the session seed
// is only known at execution time, not at load time).
func loadGrammarGeist(id, path string, registry *hostfunc.Registry, rngForSeed func() *rand.Rand) (*Geist, error) {
	doc, err := grammar.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	suggest := func(vc *vaultcontext.Context) ([]model.Suggestion, error) {
		engine := grammar.NewEngine(doc.Grammar, rngForSeed(), registry, vc)
		return grammar.Suggest(engine, doc, id, vc)
	}
	return &Geist{ID: id, Kind: model.KindGrammar, Path: path, Suggest: suggest, State: Loaded}, nil
}

// Package hostfunc is a process-wide registry of named callables invocable
// both directly by code geists and indirectly by grammar geists' $vault.
// syntax. Each function's first parameter is the VaultContext; the
// registry depends only on this package's own Vault interface so it never
// imports vaultcontext, avoiding an import cycle.
package hostfunc

import (
	"fmt"
	"sync"

	"github.com/geistfabrik/geistfabrik/internal/model"
)

// Vault is the subset of vaultcontext.Context's surface host functions may
// call. vaultcontext.Context satisfies this interface structurally.
type Vault interface {
	SampleNotes(k int) []model.Note
	OldNotes(k int) []model.Note
	RecentNotes(k int) []model.Note
	Orphans(k int) []model.Note
	Hubs(k int) []model.Note
	Neighbors(path string, k int) []model.Note
}

// Func is a host function: first parameter is the Vault, remaining
// arguments are positional strings (as produced by grammar's
// $vault.name(arg, arg, ...) parsing, and usable directly by code geists).
type Func func(v Vault, args ...string) (interface{}, error)

// Registry holds a name->callable map. Registration with a duplicate name
// is an error.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Func
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Func)}
}

// Register adds fn under name, returning an error if the name is already
// taken.
func (r *Registry) Register(name string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fns[name]; exists {
		return fmt.Errorf("hostfunc: %q is already registered", name)
	}
	r.fns[name] = fn
	return nil
}

// Call dispatches to the named function, passing v as its Vault argument.
func (r *Registry) Call(v Vault, name string, args ...string) (interface{}, error) {
	r.mu.RLock()
	fn, ok := r.fns[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("hostfunc: no function registered under %q", name)
	}
	return fn(v, args...)
}

// DefaultRegistry returns a Registry with the built-in functions
// (sample_notes, old_notes, recent_notes, orphans, hubs, neighbors)
// already registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, fn := range builtins() {
		if err := r.Register(name, fn); err != nil {
			// Built-ins are registered once at process start with fixed,
			// distinct names; a collision here is a programming error.
			panic(err)
		}
	}
	return r
}

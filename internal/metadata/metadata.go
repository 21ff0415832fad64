// Package metadata composes per-note metadata by running a set of
// independently loaded modules, each inferring a small map of key-value
// facts about a note. Modules never import vaultcontext directly: Vault is
// metadata's own minimal interface, satisfied structurally by
// vaultcontext.Context, matching the one-way dependency direction used by
// internal/hostfunc.
package metadata

import (
	"fmt"

	"github.com/geistfabrik/geistfabrik/internal/model"
)

// Vault is the subset of vaultcontext.Context's surface a metadata module
// may call while inferring facts about a note.
type Vault interface {
	Backlinks(note model.Note) []model.Note
	OutgoingLinks(note model.Note) []model.Note
	Neighbors(path string, k int) []model.Note
}

// InferFunc computes a note's metadata contribution for one module.
type InferFunc func(note model.Note, vault Vault) (map[string]interface{}, error)

// Module is one loaded inference unit, identified by its file stem.
type Module struct {
	ID    string
	Path  string
	Infer InferFunc
}

// IssueStatus classifies one module's contribution to a single Infer call.
type IssueStatus string

const (
	IssueError     IssueStatus = "error"
	IssueCollision IssueStatus = "key_collision"
)

// Issue records a module's failure to contribute for a given note: either
// it errored, or one of its keys collided with an already-set key from an
// earlier module.
type Issue struct {
	ModuleID string
	NotePath string
	Status   IssueStatus
	Detail   string
}

// Analyser composes Modules in registration order, merging their output
// maps and rejecting later keys that collide with earlier ones.
type Analyser struct {
	Modules []Module
	Issues  []Issue
}

// NewAnalyser constructs an Analyser over the given modules.
func NewAnalyser(modules []Module) *Analyser {
	return &Analyser{Modules: modules}
}

// Infer runs every module against note in registration order, merging
// their maps. A module that errors has its contribution skipped and an
// Issue recorded; the remaining modules still run. A key already set by an
// earlier module is never overwritten; the collision is recorded as an
// Issue and that single key from the later module is dropped, while the
// rest of its map still merges.
func (a *Analyser) Infer(note model.Note, vault Vault) map[string]interface{} {
	result := make(map[string]interface{})
	for _, m := range a.Modules {
		contribution, err := m.Infer(note, vault)
		if err != nil {
			a.Issues = append(a.Issues, Issue{ModuleID: m.ID, NotePath: note.Path, Status: IssueError, Detail: err.Error()})
			continue
		}
		for k, v := range contribution {
			if _, exists := result[k]; exists {
				a.Issues = append(a.Issues, Issue{
					ModuleID: m.ID,
					NotePath: note.Path,
					Status:   IssueCollision,
					Detail:   fmt.Sprintf("key %q already set by an earlier module", k),
				})
				continue
			}
			result[k] = v
		}
	}
	return result
}

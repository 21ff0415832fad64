// Package grammar implements a Tracery-like expansion engine: symbols are
// expanded by picking a random rule from the grammar, rules may nest
// further #symbol# references, and $vault.<name>(args...) calls dispatch
// to the host-function registry.
package grammar

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/model"
)

// DefaultMaxDepth bounds expansion recursion; exceeding it is a domain
// error caught by the grammar-geist wrapper.
const DefaultMaxDepth = 50

// ErrMaxDepthExceeded is returned when a template's expansion recurses
// past MaxDepth.
var ErrMaxDepthExceeded = fmt.Errorf("grammar: max expansion depth exceeded")

var (
	symbolRe = regexp.MustCompile(`#([A-Za-z0-9_.]+)#`)
	vaultRe  = regexp.MustCompile(`\$vault\.([A-Za-z0-9_]+)\(([^)]*)\)`)
)

// Engine expands a grammar's symbols using a seeded RNG, dispatching
// $vault.* calls to the given registry and vault.
type Engine struct {
	Grammar  map[string][]string
	RNG      *rand.Rand
	Registry *hostfunc.Registry
	Vault    hostfunc.Vault
	MaxDepth int
}

// NewEngine constructs an Engine with DefaultMaxDepth.
func NewEngine(grammarRules map[string][]string, rng *rand.Rand, registry *hostfunc.Registry, vault hostfunc.Vault) *Engine {
	return &Engine{Grammar: grammarRules, RNG: rng, Registry: registry, Vault: vault, MaxDepth: DefaultMaxDepth}
}

// Expand replaces every #symbol.mod1.mod2# reference in template and every
// $vault.name(args) call, recursively, up to MaxDepth.
func (e *Engine) Expand(template string) (string, error) {
	return e.expandDepth(template, 0)
}

func (e *Engine) expandDepth(template string, depth int) (string, error) {
	if depth > e.MaxDepth {
		return "", ErrMaxDepthExceeded
	}

	var expandErr error
	out := symbolRe.ReplaceAllStringFunc(template, func(m string) string {
		if expandErr != nil {
			return m
		}
		inner := m[1 : len(m)-1] // strip leading/trailing '#'
		parts := strings.Split(inner, ".")
		symbol := parts[0]
		mods := parts[1:]

		rules, ok := e.Grammar[symbol]
		if !ok || len(rules) == 0 {
			return m
		}
		chosen := rules[e.RNG.Intn(len(rules))]
		expanded, err := e.expandDepth(chosen, depth+1)
		if err != nil {
			expandErr = err
			return m
		}
		return applyModifiers(expanded, mods)
	})
	if expandErr != nil {
		return "", expandErr
	}

	out = vaultRe.ReplaceAllStringFunc(out, func(m string) string {
		return e.callVaultFunction(m)
	})

	return out, nil
}

// callVaultFunction evaluates a single $vault.name(args) call, stringifying
// the result per the list-rendering / error-inlining rules.
func (e *Engine) callVaultFunction(call string) string {
	m := vaultRe.FindStringSubmatch(call)
	if m == nil {
		return call
	}
	name := m[1]
	args := parseArgs(m[2])

	result, err := e.Registry.Call(e.Vault, name, args...)
	if err != nil {
		return fmt.Sprintf("[Error calling %s: %v]", name, err)
	}
	return stringifyResult(result)
}

// parseArgs splits a comma-separated argument list; numeric-looking tokens
// pass through as-is (callees parse them), others have surrounding quotes
// stripped.
func parseArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if _, err := strconv.Atoi(p); err == nil {
			out[i] = p
			continue
		}
		out[i] = strings.Trim(p, `"'`)
	}
	return out
}

// stringifyResult renders a host function's return value: lists of notes
// become wiki-link phrases ("[[a]] and [[b]]", Oxford style for >=3);
// everything else is formatted with fmt.Sprint.
func stringifyResult(result interface{}) string {
	notes, ok := result.([]model.Note)
	if !ok {
		return fmt.Sprint(result)
	}
	links := make([]string, len(notes))
	for i, n := range notes {
		links[i] = fmt.Sprintf("[[%s]]", n.ObsidianLink())
	}
	return joinOxford(links)
}

func joinOxford(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

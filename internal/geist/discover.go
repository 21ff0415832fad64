package geist

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/grammar"
	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
)

// Discover scans dir (non-recursively) for code geists (.so) and grammar
// geists (.yaml/.yml), registers each against e, and returns the load
// errors encountered (one per skipped file; discovery itself never fails
// outright). A geist's id is its file stem; enabled reports whether a
// given id starts enabled (default true when absent from the map).
func (e *Executor) Discover(dir string, registry *hostfunc.Registry, seed func() int64, enabled map[string]bool) []error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []error{fmt.Errorf("geist: reading %s: %w", dir, err)}
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

		var g *Geist
		var loadErr error

		switch {
		case strings.HasSuffix(entry.Name(), ".so"):
			g, loadErr = loadCodeGeist(id, path)
		case grammar.IsGrammarFile(entry.Name()):
			rngForSeed := func() *rand.Rand { return rand.New(rand.NewSource(seed())) }
			g, loadErr = loadGrammarGeist(id, path, registry, rngForSeed)
		default:
			continue
		}

		if loadErr != nil {
			e.appendLog(LogRecord{GeistID: id, Status: StatusLoadError, Detail: loadErr.Error(), At: time.Now()})
			errs = append(errs, loadErr)
			continue
		}

		if isEnabled, explicit := enabled[id]; explicit && !isEnabled {
			g.State = Disabled
		} else {
			g.State = Enabled
		}

		if err := e.Register(g); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/geistfabrik/geistfabrik/internal/model"
)

// LoadDir opens every .so file in dir as a Go plugin exposing an Infer
// symbol, returning one Module per successfully loaded file. A file that
// fails to open, lacks the symbol, or has the wrong signature is skipped
// and its error returned alongside the modules that did load; a single
// bad module never blocks the rest from loading.
func LoadDir(dir string) ([]Module, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("metadata: reading %s: %w", dir, err)}
	}

	var modules []Module
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		id := strings.TrimSuffix(entry.Name(), ".so")

		m, err := loadModule(id, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		modules = append(modules, m)
	}
	return modules, errs
}

func loadModule(id, path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return Module{}, fmt.Errorf("metadata: opening plugin %s: %w", path, err)
	}
	sym, err := p.Lookup("Infer")
	if err != nil {
		return Module{}, fmt.Errorf("metadata: plugin %s has no Infer symbol: %w", path, err)
	}
	fn, ok := sym.(func(model.Note, Vault) (map[string]interface{}, error))
	if !ok {
		return Module{}, fmt.Errorf("metadata: plugin %s's Infer has the wrong signature", path)
	}
	return Module{ID: id, Path: path, Infer: fn}, nil
}

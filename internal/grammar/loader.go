package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a grammar-geist definition file: a root symbol to expand
// ("origin" by convention), a suggestion count, and the rule table.
type Document struct {
	Kind    string              `yaml:"kind"`
	Count   int                 `yaml:"count"`
	Origin  string              `yaml:"origin"`
	Grammar map[string][]string `yaml:"grammar"`
}

// defaultOrigin is the symbol expanded when a document omits one.
const defaultOrigin = "origin"

// defaultCount is used when a document omits count.
const defaultCount = 1

// LoadDocument reads and validates a grammar-geist YAML file. kind must be
// "grammar" when present.
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("grammar: reading %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("grammar: parsing %s: %w", path, err)
	}
	if doc.Kind != "" && doc.Kind != "grammar" {
		return nil, fmt.Errorf("grammar: %s declares kind %q, expected \"grammar\"", path, doc.Kind)
	}
	if len(doc.Grammar) == 0 {
		return nil, fmt.Errorf("grammar: %s defines no grammar rules", path)
	}
	if doc.Origin == "" {
		doc.Origin = defaultOrigin
	}
	if doc.Count <= 0 {
		doc.Count = defaultCount
	}
	return &doc, nil
}

// IsGrammarFile reports whether path looks like a grammar-geist definition
// by extension (.yaml or .yml).
func IsGrammarFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

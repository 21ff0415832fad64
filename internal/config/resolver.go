// Package config resolves GeistFabrik's runtime configuration by layering a
// YAML config file under environment variables under CLI flags, recording
// where each resolved value came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// ResolvedValue carries a configuration value alongside where it came from,
// so callers (and `--show-config`-style diagnostics) can explain precedence.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLIDBPath  string
	CLIVault   string
}

// ResolvedConfig is GeistFabrik's full set of recognised configuration
// options, matching the core's construction-time config object.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath   ResolvedValue `json:"db_path"`
	VaultDir ResolvedValue `json:"vault_dir"`

	TimeoutSeconds ResolvedValue `json:"timeout_seconds"`
	MaxFailures    ResolvedValue `json:"max_failures"`
	VectorBackend  ResolvedValue `json:"vector_backend"`

	DateCollectionEnabled     ResolvedValue `json:"date_collection_enabled"`
	DateCollectionMinSections ResolvedValue `json:"date_collection_min_sections"`
	DateCollectionThreshold   ResolvedValue `json:"date_collection_threshold"`

	NoveltyWindowDays   ResolvedValue `json:"novelty_window_days"`
	SimilarityThreshold ResolvedValue `json:"similarity_threshold"`

	FilterStages      []string                 `json:"filter_stages"`
	DefaultGeistOrder []string                 `json:"default_geist_order"`
	EnabledGeists     map[string]ResolvedValue `json:"enabled_geists,omitempty"`
}

type fileConfig struct {
	DBPath   string `yaml:"db_path"`
	VaultDir string `yaml:"vault_dir"`

	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxFailures    int     `yaml:"max_failures"`
	VectorBackend  string  `yaml:"vector_backend"`

	DateCollection struct {
		Enabled     *bool   `yaml:"enabled"`
		MinSections int     `yaml:"min_sections"`
		Threshold   float64 `yaml:"threshold"`
	} `yaml:"date_collection"`

	Filter struct {
		NoveltyWindowDays   int      `yaml:"novelty_window_days"`
		SimilarityThreshold float64  `yaml:"similarity_threshold"`
		Stages              []string `yaml:"stages"`
	} `yaml:"filter"`

	DefaultGeistOrder []string        `yaml:"default_geist_order"`
	EnabledGeists     map[string]bool `yaml:"enabled_geists"`
}

// DefaultConfigPath is ~/.geistfabrik/config.yaml, absent an override.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".geistfabrik", "config.yaml")
}

// ResolveConfig layers defaults, then the YAML config file, then environment
// variables, then CLI flags, recording the winning source for each field.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:        path,
		EnabledGeists:     map[string]ResolvedValue{},
		FilterStages:      []string{"boundary", "novelty", "diversity", "quality"},
		DefaultGeistOrder: nil,
	}
	setDefault(&out.TimeoutSeconds, "5")
	setDefault(&out.MaxFailures, "3")
	setDefault(&out.VectorBackend, "in-memory")
	setDefault(&out.DateCollectionEnabled, "true")
	setDefault(&out.DateCollectionMinSections, "2")
	setDefault(&out.DateCollectionThreshold, "0.5")
	setDefault(&out.NoveltyWindowDays, "60")
	setDefault(&out.SimilarityThreshold, "0.85")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.VaultDir, cfg.VaultDir, SourceConfig, path)
		if cfg.TimeoutSeconds > 0 {
			apply(&out.TimeoutSeconds, strconv.Itoa(cfg.TimeoutSeconds), SourceConfig, path)
		}
		if cfg.MaxFailures > 0 {
			apply(&out.MaxFailures, strconv.Itoa(cfg.MaxFailures), SourceConfig, path)
		}
		apply(&out.VectorBackend, cfg.VectorBackend, SourceConfig, path)

		if cfg.DateCollection.Enabled != nil {
			apply(&out.DateCollectionEnabled, strconv.FormatBool(*cfg.DateCollection.Enabled), SourceConfig, path)
		}
		if cfg.DateCollection.MinSections > 0 {
			apply(&out.DateCollectionMinSections, strconv.Itoa(cfg.DateCollection.MinSections), SourceConfig, path)
		}
		if cfg.DateCollection.Threshold > 0 {
			apply(&out.DateCollectionThreshold, strconv.FormatFloat(cfg.DateCollection.Threshold, 'f', -1, 64), SourceConfig, path)
		}

		if cfg.Filter.NoveltyWindowDays > 0 {
			apply(&out.NoveltyWindowDays, strconv.Itoa(cfg.Filter.NoveltyWindowDays), SourceConfig, path)
		}
		if cfg.Filter.SimilarityThreshold > 0 {
			apply(&out.SimilarityThreshold, strconv.FormatFloat(cfg.Filter.SimilarityThreshold, 'f', -1, 64), SourceConfig, path)
		}
		if len(cfg.Filter.Stages) > 0 {
			out.FilterStages = cfg.Filter.Stages
		}
		if len(cfg.DefaultGeistOrder) > 0 {
			out.DefaultGeistOrder = cfg.DefaultGeistOrder
		}
		for id, enabled := range cfg.EnabledGeists {
			out.EnabledGeists[id] = ResolvedValue{Value: strconv.FormatBool(enabled), Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "GEISTFABRIK_DB")
	applyEnv(&out.VaultDir, "GEISTFABRIK_VAULT")
	applyEnv(&out.TimeoutSeconds, "GEISTFABRIK_TIMEOUT_SECONDS")
	applyEnv(&out.MaxFailures, "GEISTFABRIK_MAX_FAILURES")
	applyEnv(&out.VectorBackend, "GEISTFABRIK_VECTOR_BACKEND")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.VaultDir, opts.CLIVault, SourceCLI, "--vault")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.VaultDir.Value != "" {
		out.VaultDir.Value = expandUserPath(out.VaultDir.Value)
	}

	return out, nil
}

func setDefault(dst *ResolvedValue, value string) {
	*dst = ResolvedValue{Value: value, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// Int parses a ResolvedValue as an int, returning fallback on error.
func (r ResolvedValue) Int(fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.Value))
	if err != nil {
		return fallback
	}
	return v
}

// Float parses a ResolvedValue as a float64, returning fallback on error.
func (r ResolvedValue) Float(fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// Bool parses a ResolvedValue as a bool, returning fallback on error.
func (r ResolvedValue) Bool(fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.Value))
	if err != nil {
		return fallback
	}
	return v
}

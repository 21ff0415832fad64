package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/config"
	"github.com/geistfabrik/geistfabrik/internal/embedtext"
	"github.com/geistfabrik/geistfabrik/internal/filter"
	"github.com/geistfabrik/geistfabrik/internal/geist"
	"github.com/geistfabrik/geistfabrik/internal/geistlog"
	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/metadata"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/session"
	"github.com/geistfabrik/geistfabrik/internal/store"
	"github.com/geistfabrik/geistfabrik/internal/vaultcontext"
	"github.com/geistfabrik/geistfabrik/internal/vaultsync"
	"github.com/geistfabrik/geistfabrik/internal/vector"
	"github.com/google/uuid"
)

func runRun(args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	ctx := backgroundContext()
	suggestions, _, err := runSession(ctx, cfg, todaySessionDate())
	if err != nil {
		return err
	}
	for _, s := range suggestions {
		fmt.Println(s.Text)
	}
	return nil
}

// runSession performs one full session: sync, embedding recompute, geist
// execution, and filtering, returning the surviving suggestions and the
// execution log.
func runSession(ctx context.Context, cfg config.ResolvedConfig, date time.Time) ([]model.Suggestion, *geistlog.Logger, error) {
	logger := geistlog.New(date.Format("2006-01-02"), time.Now())

	s, err := store.New(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	if cfg.VaultDir.Value != "" {
		syncer := vaultsync.New(cfg.VaultDir.Value, s)
		if _, err := syncer.Sync(ctx); err != nil {
			return nil, nil, fmt.Errorf("syncing vault: %w", err)
		}
	}

	embedder, err := buildEmbedder()
	if err != nil {
		return nil, nil, err
	}
	computer := embedtext.New(embedder, s)

	backend := buildBackend(cfg, s, embedder.Dimensions())
	sess, err := session.Open(ctx, s, date, computer, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session: %w", err)
	}

	notes, err := s.AllNotes(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading notes: %w", err)
	}

	needsRecompute, err := sess.NeedsRecompute(ctx, notes)
	if err != nil {
		return nil, nil, fmt.Errorf("checking vault state: %w", err)
	}
	if needsRecompute {
		if _, err := sess.RecomputeEmbeddings(ctx, notes); err != nil {
			return nil, nil, fmt.Errorf("computing embeddings: %w", err)
		}
	} else if err := backend.LoadEmbeddings(ctx, sess.ID); err != nil {
		return nil, nil, fmt.Errorf("loading embeddings: %w", err)
	}

	registry := hostfunc.DefaultRegistry()

	var analyser *metadata.Analyser
	if dir := os.Getenv("GEISTFABRIK_METADATA_DIR"); dir != "" {
		modules, loadErrs := metadata.LoadDir(dir)
		for _, e := range loadErrs {
			fmt.Fprintf(os.Stderr, "metadata: %v\n", e)
		}
		analyser = metadata.NewAnalyser(modules)
	}

	vc := vaultcontext.New(ctx, s, sess, registry, analyser, nil)

	executor := geist.NewExecutor(timeoutFromConfig(cfg), maxFailuresFromConfig(cfg))
	executor.Order = cfg.DefaultGeistOrder
	if dir := os.Getenv("GEISTFABRIK_GEISTS_DIR"); dir != "" {
		enabled := make(map[string]bool, len(cfg.EnabledGeists))
		for id, v := range cfg.EnabledGeists {
			enabled[id] = v.Value == "true"
		}
		seed := vc.Seed()
		loadErrs := executor.Discover(dir, registry, func() int64 { return seed }, enabled)
		for _, e := range loadErrs {
			fmt.Fprintf(os.Stderr, "geist: %v\n", e)
		}
	}

	results := executor.ExecuteAll(ctx, vc)
	logger.RecordGeistRun(executor.Log)
	if analyser != nil {
		logger.RecordMetadataIssues(analyser.Issues)
	}

	var all []model.Suggestion
	for _, suggestions := range results {
		all = append(all, suggestions...)
	}

	pipeline := filter.NewPipeline(filter.Config{
		Stages:              cfg.FilterStages,
		NoveltyWindowDays:   cfg.NoveltyWindowDays.Int(60),
		SimilarityThreshold: cfg.SimilarityThreshold.Float(0.85),
		MinLength:           10,
		MaxLength:           2000,
	}, s, embedder, vc)

	filtered, err := pipeline.FilterAll(ctx, all, date)
	if err != nil {
		return nil, nil, fmt.Errorf("filtering suggestions: %w", err)
	}

	for _, suggestion := range filtered {
		if err := s.RecordSuggestion(ctx, store.SuggestionRecord{
			SessionDate:    date.Format("2006-01-02"),
			GeistID:        suggestion.GeistID,
			SuggestionText: suggestion.Text,
			BlockID:        uuid.NewString(),
			CreatedAt:      time.Now(),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "recording suggestion: %v\n", err)
		}
	}

	logger.RecordFilteredCount(len(filtered))
	logger.Finish(time.Now())
	return filtered, logger, nil
}

func buildEmbedder() (embedtext.Embedder, error) {
	flag := os.Getenv("GEISTFABRIK_EMBED")
	if flag == "" {
		flag = "ollama/nomic-embed-text"
	}
	if strings.HasPrefix(flag, "onnx/") {
		return buildONNXEmbedder(strings.TrimPrefix(flag, "onnx/"))
	}
	embedCfg, err := embedtext.ParseEmbedFlag(flag)
	if err != nil {
		return nil, fmt.Errorf("parsing GEISTFABRIK_EMBED: %w", err)
	}
	return embedtext.NewHTTPEmbedder(embedCfg)
}

// buildONNXEmbedder constructs a local embedder running a bundled ONNX
// sentence-embedding model, used when GEISTFABRIK_EMBED is "onnx/<model-dir>".
// GEISTFABRIK_ONNX_LIB overrides the onnxruntime shared library path;
// GEISTFABRIK_ONNX_THREADS overrides intra-op thread count (0 = auto).
func buildONNXEmbedder(modelDir string) (embedtext.Embedder, error) {
	threads := 0
	if v := os.Getenv("GEISTFABRIK_ONNX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			threads = n
		}
	}
	return embedtext.NewONNXEmbedder(modelDir, os.Getenv("GEISTFABRIK_ONNX_LIB"), threads)
}

func buildBackend(cfg config.ResolvedConfig, s *store.Store, dims int) vector.Backend {
	if cfg.VectorBackend.Value == "indexed" {
		return vector.NewIndexed(s, dims)
	}
	return vector.NewInMemory(s)
}

func timeoutFromConfig(cfg config.ResolvedConfig) time.Duration {
	return time.Duration(cfg.TimeoutSeconds.Int(5)) * time.Second
}

func maxFailuresFromConfig(cfg config.ResolvedConfig) int {
	return cfg.MaxFailures.Int(3)
}

package main

import (
	"context"
	"fmt"

	"github.com/geistfabrik/geistfabrik/internal/hostfunc"
	"github.com/geistfabrik/geistfabrik/internal/mcpserve"
	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/session"
	"github.com/geistfabrik/geistfabrik/internal/store"
	"github.com/geistfabrik/geistfabrik/internal/vaultcontext"
	"github.com/mark3labs/mcp-go/server"
)

func runServe(args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	runSessionFn := func(ctx context.Context) ([]model.Suggestion, error) {
		suggestions, _, err := runSession(ctx, cfg, todaySessionDate())
		return suggestions, err
	}

	vaultLookup := func(ctx context.Context) (*vaultcontext.Context, error) {
		s, err := store.New(store.Config{DBPath: cfg.DBPath.Value})
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		embedder, err := buildEmbedder()
		if err != nil {
			s.Close()
			return nil, err
		}
		backend := buildBackend(cfg, s, embedder.Dimensions())
		sess, err := session.Open(ctx, s, todaySessionDate(), nil, backend)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("opening session: %w", err)
		}
		return vaultcontext.New(ctx, s, sess, hostfunc.DefaultRegistry(), nil, nil), nil
	}

	srv := mcpserve.NewServer(mcpserve.ServerConfig{
		Version:     version,
		RunSession:  runSessionFn,
		VaultLookup: vaultLookup,
	})
	return server.ServeStdio(srv)
}

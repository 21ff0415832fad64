package main

import (
	"fmt"

	"github.com/geistfabrik/geistfabrik/internal/store"
	"github.com/geistfabrik/geistfabrik/internal/vaultsync"
)

func runSync(args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if cfg.VaultDir.Value == "" {
		return fmt.Errorf("no vault directory configured (set --vault, GEISTFABRIK_VAULT, or vault_dir in config)")
	}

	s, err := store.New(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	syncer := vaultsync.New(cfg.VaultDir.Value, s)
	n, err := syncer.Sync(backgroundContext())
	if err != nil {
		return fmt.Errorf("syncing vault: %w", err)
	}
	fmt.Printf("synced %d source file(s) from %s\n", n, cfg.VaultDir.Value)
	return nil
}

// Command geistfabrik is GeistFabrik's CLI: sync a vault, run a session's
// geists and filter their suggestions, print or serve the result. No
// cobra/viper, just a flat switch over the first argument, in the style of
// cortex's own entrypoint.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/geistfabrik/geistfabrik/internal/config"
)

var version = "0.1.0-dev"

var (
	globalDBPath   string
	globalVaultDir string
	globalConfig   string
)

func main() {
	args := parseGlobalFlags(os.Args[1:])

	if len(args) < 1 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "sync":
		err = runSync(args[1:])
	case "run":
		err = runRun(args[1:])
	case "serve":
		err = runServe(args[1:])
	case "config":
		err = runShowConfig(args[1:])
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseGlobalFlags(args []string) []string {
	var filtered []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--db" && i+1 < len(args):
			globalDBPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--db="):
			globalDBPath = strings.TrimPrefix(args[i], "--db=")
		case args[i] == "--vault" && i+1 < len(args):
			globalVaultDir = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--vault="):
			globalVaultDir = strings.TrimPrefix(args[i], "--vault=")
		case args[i] == "--config" && i+1 < len(args):
			globalConfig = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			globalConfig = strings.TrimPrefix(args[i], "--config=")
		default:
			filtered = append(filtered, args[i])
		}
	}
	return filtered
}

func resolveConfig() (config.ResolvedConfig, error) {
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: globalConfig,
		CLIDBPath:  globalDBPath,
		CLIVault:   globalVaultDir,
	})
}

func runShowConfig(args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	fmt.Printf("config_path:   %s\n", cfg.ConfigPath)
	fmt.Printf("db_path:       %s (from %s)\n", cfg.DBPath.Value, cfg.DBPath.Source)
	fmt.Printf("vault_dir:     %s (from %s)\n", cfg.VaultDir.Value, cfg.VaultDir.Source)
	fmt.Printf("timeout:       %ss (from %s)\n", cfg.TimeoutSeconds.Value, cfg.TimeoutSeconds.Source)
	fmt.Printf("max_failures:  %s (from %s)\n", cfg.MaxFailures.Value, cfg.MaxFailures.Source)
	fmt.Printf("vector_backend: %s (from %s)\n", cfg.VectorBackend.Value, cfg.VectorBackend.Source)
	fmt.Printf("filter_stages: %v\n", cfg.FilterStages)
	return nil
}

func printUsage() {
	fmt.Printf(`geistfabrik %s — a vault-aware suggestion generator for Obsidian-style notes

Usage:
  geistfabrik [global-flags] <command> [arguments]

Global flags:
  --db <path>       SQLite database path (default from config, then GEISTFABRIK_DB)
  --vault <path>    Vault directory to sync/run against
  --config <path>   Path to config.yaml (default ~/.geistfabrik/config.yaml)

Commands:
  sync              Sync the vault directory into the database
  run               Sync, execute all geists, filter, and print today's suggestions
  serve             Run as an MCP server over stdio
  config            Print the resolved configuration and where each value came from
  version           Print the version
`, version)
}

func todaySessionDate() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

func backgroundContext() context.Context {
	return context.Background()
}

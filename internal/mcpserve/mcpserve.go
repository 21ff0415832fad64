// Package mcpserve exposes GeistFabrik as a Model Context Protocol server:
// running a session, listing its suggestions, and inspecting notes, via
// stdio transport.
package mcpserve

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/geistfabrik/geistfabrik/internal/model"
	"github.com/geistfabrik/geistfabrik/internal/vaultcontext"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// runMu serializes tool calls that touch the single SQLite connection.
// mcp-go dispatches handlers concurrently; SQLite does not support
// concurrent writers.
var runMu sync.Mutex

// RunSessionFunc executes a full session (sync, geist execution,
// filtering) and returns its suggestions.
type RunSessionFunc func(ctx context.Context) ([]model.Suggestion, error)

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Version     string
	RunSession  RunSessionFunc
	VaultLookup func(ctx context.Context) (*vaultcontext.Context, error)
}

// NewServer creates a configured MCP server exposing GeistFabrik's tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"GeistFabrik",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	registerRunSessionTool(s, cfg.RunSession)
	registerGetNoteTool(s, cfg.VaultLookup)
	registerNeighborsTool(s, cfg.VaultLookup)

	return s
}

func registerRunSessionTool(s *server.MCPServer, run RunSessionFunc) {
	tool := mcp.NewTool("geistfabrik_run_session",
		mcp.WithDescription("Run a full session against the vault: sync notes, execute all enabled geists, and filter their suggestions. Returns the surviving suggestions as JSON."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runMu.Lock()
		defer runMu.Unlock()

		if run == nil {
			return mcp.NewToolResultError("run_session is not configured"), nil
		}
		suggestions, err := run(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session error: %v", err)), nil
		}
		data, _ := json.MarshalIndent(suggestions, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerGetNoteTool(s *server.MCPServer, lookup func(ctx context.Context) (*vaultcontext.Context, error)) {
	tool := mcp.NewTool("geistfabrik_get_note",
		mcp.WithDescription("Fetch a single note by path, including its links, tags, and computed metadata."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path as stored in the vault, e.g. \"journal/2026-07-30.md\"")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runMu.Lock()
		defer runMu.Unlock()

		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		vc, err := lookup(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("vault error: %v", err)), nil
		}
		note, ok := vc.GetNote(path)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no note at path %q", path)), nil
		}
		out := map[string]interface{}{"note": note, "metadata": vc.Metadata(note)}
		data, _ := json.MarshalIndent(out, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerNeighborsTool(s *server.MCPServer, lookup func(ctx context.Context) (*vaultcontext.Context, error)) {
	tool := mcp.NewTool("geistfabrik_neighbors",
		mcp.WithDescription("Find the semantically nearest notes to a given note path."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path to find neighbours of")),
		mcp.WithNumber("count", mcp.Description("Maximum number of neighbours to return (default 5)")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runMu.Lock()
		defer runMu.Unlock()

		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		count := 5
		if v, err := req.RequireFloat("count"); err == nil && v > 0 {
			count = int(v)
		}

		vc, err := lookup(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("vault error: %v", err)), nil
		}
		neighbors := vc.Neighbors(path, count)
		data, _ := json.MarshalIndent(neighbors, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

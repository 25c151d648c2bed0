// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/mirror"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/syncer"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp *server.MCPServer
	svc *mirror.Service
}

// New creates a new MCP server with all Othala tools registered.
func New(svc *mirror.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Full-text search through cached page content and titles."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User ID whose cache to search")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("notebook", mcp.Description("Optional notebook ID to restrict the search")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the searchable text of one cached page."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User ID")),
		mcp.WithString("page", mcp.Required(), mcp.Description("Page ID")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Cache statistics: notebook, section, page, and attachment counts plus total size."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User ID")),
	), s.cacheStats)

	s.mcp.AddTool(mcp.NewTool("detect_changes",
		mcp.WithDescription("Compare remote and cached state and list added, modified, deleted, and conflicted pages. Read-only."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User ID")),
		mcp.WithString("notebook", mcp.Description("Optional notebook ID to restrict the scan")),
	), s.detectChanges)

	s.mcp.AddTool(mcp.NewTool("run_sync",
		mcp.WithDescription("Run an incremental sync. Conflicted pages resolve per the strategy; "+
			"user_prompt defers them to the pending queue (see pending_conflicts)."),
		mcp.WithString("user", mcp.Required(), mcp.Description("User ID")),
		mcp.WithString("strategy", mcp.Description("Conflict strategy: remote_wins, local_wins, newer_wins, user_prompt (default newer_wins)")),
		mcp.WithBoolean("dry_run", mcp.Description("Plan and count operations without mutating anything")),
	), s.runSync)

	s.mcp.AddTool(mcp.NewTool("indexing_status",
		mcp.WithDescription("Progress of the active bulk indexing run, if any."),
	), s.indexingStatus)

	s.mcp.AddTool(mcp.NewTool("pending_conflicts",
		mcp.WithDescription("List sync conflicts awaiting manual resolution."),
	), s.pendingConflicts)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notebook := ""
	if nb, nbErr := req.RequireString("notebook"); nbErr == nil {
		notebook = nb
	}

	results, err := s.svc.Search(user, search.Query{Text: query, Limit: 20, NotebookID: notebook})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageID, err := req.RequireString("page")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.svc.ReadPageText(user, pageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", pageID)), nil
	}
	return mcp.NewToolResultText(string(text)), nil
}

func (s *Server) cacheStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.svc.Statistics(user)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(stats, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) detectChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var scope syncer.Scope
	if nb, nbErr := req.RequireString("notebook"); nbErr == nil && nb != "" {
		scope.NotebookIDs = []string{nb}
	}

	changes, err := s.svc.DetectChanges(ctx, user, scope, time.Time{})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(changes) == 0 {
		return mcp.NewToolResultText("no changes detected"), nil
	}
	out, _ := json.MarshalIndent(changes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) runSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	user, err := req.RequireString("user")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	strategy := models.NewerWins
	if raw, strErr := req.RequireString("strategy"); strErr == nil && raw != "" {
		strategy = models.ConflictStrategy(raw)
	}
	dryRun := req.GetBool("dry_run", false)

	report, err := s.svc.ExecuteSync(ctx, user, syncer.Scope{}, time.Time{}, strategy, dryRun)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) indexingStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	progress, active := s.svc.IndexingStatus()
	if !active {
		return mcp.NewToolResultText("no indexing run has been started"), nil
	}
	out, _ := json.MarshalIndent(progress, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) pendingConflicts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending := s.svc.PendingConflicts()
	if len(pending) == 0 {
		return mcp.NewToolResultText("no pending conflicts"), nil
	}
	var lines []string
	for _, c := range pending {
		lines = append(lines, fmt.Sprintf("%s (%s): %s", c.PageID, c.Title, c.ConflictReason))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// Package mcp implements the Model Context Protocol server for voicegraph,
// so agent frontends can drive the sync pipeline as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/fractionalquest/voicegraph/internal/extractor"
	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/store"
	syncpipe "github.com/fractionalquest/voicegraph/internal/sync"
)

// Server wraps an MCPServer with voicegraph dependencies.
type Server struct {
	mcp    *mcpserver.MCPServer
	orch   *syncpipe.Orchestrator
	st     store.Store
	logger *slog.Logger
}

// NewServer creates a new MCP server. If orch or st are nil, the
// corresponding tool calls return an error response instead of panicking.
func NewServer(orch *syncpipe.Orchestrator, st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		orch:   orch,
		st:     st,
		logger: logger,
	}

	mcpSrv := mcpserver.NewMCPServer(
		"voicegraph",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildProcessUtteranceTool(), s.handleProcessUtterance)
	mcpSrv.AddTool(buildListPendingTool(), s.handleListPending)
	mcpSrv.AddTool(buildResolveTool(), s.handleResolve)
	mcpSrv.AddTool(buildStatsTool(), s.handleStats)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleProcessUtterance is the exported handler for the "process_utterance"
// tool. It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleProcessUtterance(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleProcessUtterance(ctx, req)
}

// HandleListPending is the exported handler for the "list_pending" tool.
func (s *Server) HandleListPending(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListPending(ctx, req)
}

// HandleResolve is the exported handler for the "resolve_confirmation" tool.
func (s *Server) HandleResolve(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleResolve(ctx, req)
}

// HandleStats is the exported handler for the "stats" tool.
func (s *Server) HandleStats(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStats(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// --- tool definitions ---

func buildProcessUtteranceTool() mcpgo.Tool {
	return mcpgo.NewTool("process_utterance",
		mcpgo.WithDescription("Extract facts from a spoken utterance and sync them: high-confidence facts commit immediately, mid-confidence facts queue for confirmation."),
		mcpgo.WithString("user_id",
			mcpgo.Required(),
			mcpgo.Description("The user the utterance belongs to"),
		),
		mcpgo.WithString("utterance",
			mcpgo.Required(),
			mcpgo.Description("The raw transcript text"),
		),
		mcpgo.WithString("user_kind",
			mcpgo.Description("Either candidate or client (default: candidate)"),
		),
	)
}

func buildListPendingTool() mcpgo.Tool {
	return mcpgo.NewTool("list_pending",
		mcpgo.WithDescription("List a user's pending confirmations, oldest first."),
		mcpgo.WithString("user_id",
			mcpgo.Required(),
			mcpgo.Description("The user whose confirmations to list"),
		),
	)
}

func buildResolveTool() mcpgo.Tool {
	return mcpgo.NewTool("resolve_confirmation",
		mcpgo.WithDescription("Approve or deny a pending confirmation. Approval commits the fact to the store of record."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The confirmation ID"),
		),
		mcpgo.WithString("decision",
			mcpgo.Required(),
			mcpgo.Description("Either approve or deny"),
		),
	)
}

func buildStatsTool() mcpgo.Tool {
	return mcpgo.NewTool("stats",
		mcpgo.WithDescription("Pipeline statistics: canonical record counts and confirmation counts by status."),
	)
}

// --- tool handlers ---

func (s *Server) handleProcessUtterance(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.orch == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	userID := req.GetString("user_id", "")
	if strings.TrimSpace(userID) == "" {
		return mcpgo.NewToolResultError("user_id is required and must not be empty"), nil
	}
	utterance := req.GetString("utterance", "")
	if strings.TrimSpace(utterance) == "" {
		return mcpgo.NewToolResultError("utterance is required and must not be empty"), nil
	}
	userKind := req.GetString("user_kind", "candidate")

	result, err := s.orch.ProcessUtterance(ctx, userID, userKind, utterance)
	if err != nil {
		if errors.Is(err, extractor.ErrUtteranceTooShort) {
			return mcpgo.NewToolResultError("utterance too short to extract from"), nil
		}
		return mcpgo.NewToolResultErrorf("processing failed: %s", err.Error()), nil
	}

	s.logger.Info("mcp: processed utterance", "user_id", userID,
		"committed", len(result.Committed), "pending", len(result.PendingConfirmations))
	return toolResultJSON(result)
}

func (s *Server) handleListPending(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.orch == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	userID := req.GetString("user_id", "")
	if strings.TrimSpace(userID) == "" {
		return mcpgo.NewToolResultError("user_id is required and must not be empty"), nil
	}

	pending, err := s.orch.ListPending(ctx, userID)
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing pending confirmations failed: %s", err.Error()), nil
	}

	result := map[string]any{
		"confirmations": pending,
	}
	return toolResultJSON(result)
}

func (s *Server) handleResolve(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.orch == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}

	id := req.GetString("id", "")
	if strings.TrimSpace(id) == "" {
		return mcpgo.NewToolResultError("id is required and must not be empty"), nil
	}
	decision := models.Decision(req.GetString("decision", ""))
	if !decision.IsValid() {
		return mcpgo.NewToolResultError("decision must be approve or deny"), nil
	}

	rec, err := s.orch.ResolveConfirmation(ctx, id, decision)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return mcpgo.NewToolResultError("confirmation not found"), nil
		case errors.Is(err, store.ErrAlreadyResolved):
			return mcpgo.NewToolResultError("confirmation already resolved"), nil
		default:
			return mcpgo.NewToolResultErrorf("resolve failed: %s", err.Error()), nil
		}
	}

	s.logger.Info("mcp: resolved confirmation", "id", id, "decision", decision)

	result := map[string]any{
		"record": rec,
	}
	return toolResultJSON(result)
}

func (s *Server) handleStats(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}

	stats, err := s.st.Stats(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("stats failed: %s", err.Error()), nil
	}
	return toolResultJSON(stats)
}

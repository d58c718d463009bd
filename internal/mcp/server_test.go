package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractionalquest/voicegraph/internal/extractor"
	"github.com/fractionalquest/voicegraph/internal/graph"
	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/queue"
	"github.com/fractionalquest/voicegraph/internal/reconcile"
	"github.com/fractionalquest/voicegraph/internal/router"
	"github.com/fractionalquest/voicegraph/internal/store"
	syncpipe "github.com/fractionalquest/voicegraph/internal/sync"
)

type stubExtractor struct {
	facts []models.Fact
}

func (s *stubExtractor) Extract(_ context.Context, _ string, _ extractor.UserContext) ([]models.Fact, error) {
	return s.facts, nil
}

func newTestMCPServer(t *testing.T, facts ...models.Fact) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemStore()

	rt, err := router.New(router.Thresholds{High: 0.80, Low: 0.50}, nil)
	require.NoError(t, err)

	orch := syncpipe.New(&stubExtractor{facts: facts}, rt, graph.NoopWriter{},
		queue.New(st, 72*time.Hour, logger),
		reconcile.NewWriter(st, logger), st,
		syncpipe.RetryPolicy{MaxAttempts: 1}, logger)

	return NewServer(orch, st, logger)
}

func newFact(value string, confidence float64) models.Fact {
	return models.Fact{
		ID:          uuid.NewString(),
		UserID:      "user-1",
		Type:        models.FactTypeSkill,
		Payload:     models.FactPayload{Value: value},
		Confidence:  confidence,
		ExtractedAt: time.Now().UTC(),
	}
}

func toolRequest(toolName string, args map[string]any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	return req
}

// textContent extracts the first TextContent string from a CallToolResult.
func textContent(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func TestProcessUtteranceTool(t *testing.T) {
	srv := newTestMCPServer(t, newFact("supply chain", 0.92))
	ctx := context.Background()

	result, err := srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"user_id":   "user-1",
		"utterance": "I led supply chain for eight years",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "process_utterance returned error: %s", textContent(t, result))

	var out syncpipe.Result
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.Len(t, out.Committed, 1)
	assert.Equal(t, "supply-chain", out.Committed[0].NaturalKey)
}

func TestProcessUtteranceToolValidation(t *testing.T) {
	srv := newTestMCPServer(t)
	ctx := context.Background()

	result, err := srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"utterance": "no user id here",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"user_id":   "user-1",
		"utterance": "   ",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListPendingTool(t *testing.T) {
	srv := newTestMCPServer(t, newFact("fractional", 0.65))
	ctx := context.Background()

	result, err := srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"user_id":   "user-1",
		"utterance": "I think I could do fractional work",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = srv.HandleListPending(ctx, toolRequest("list_pending", map[string]any{
		"user_id": "user-1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Confirmations []models.PendingConfirmation `json:"confirmations"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.Len(t, out.Confirmations, 1)
	assert.Equal(t, models.StatusPending, out.Confirmations[0].Status)
}

func TestResolveTool(t *testing.T) {
	srv := newTestMCPServer(t, newFact("fractional", 0.65))
	ctx := context.Background()

	result, err := srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"user_id":   "user-1",
		"utterance": "I think I could do fractional work",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var processed syncpipe.Result
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &processed))
	require.Len(t, processed.PendingConfirmations, 1)
	id := processed.PendingConfirmations[0].ID

	result, err = srv.HandleResolve(ctx, toolRequest("resolve_confirmation", map[string]any{
		"id":       id,
		"decision": "approve",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "resolve returned error: %s", textContent(t, result))

	var out struct {
		Record *models.CanonicalRecord `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &out))
	require.NotNil(t, out.Record)
	assert.Equal(t, "fractional", out.Record.Payload.Value)

	// Second resolution reports the conflict as a tool error.
	result, err = srv.HandleResolve(ctx, toolRequest("resolve_confirmation", map[string]any{
		"id":       id,
		"decision": "deny",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "already resolved")
}

func TestResolveToolValidation(t *testing.T) {
	srv := newTestMCPServer(t)
	ctx := context.Background()

	result, err := srv.HandleResolve(ctx, toolRequest("resolve_confirmation", map[string]any{
		"id":       "missing",
		"decision": "approve",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "not found")

	result, err = srv.HandleResolve(ctx, toolRequest("resolve_confirmation", map[string]any{
		"id":       "whatever",
		"decision": "maybe",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatsTool(t *testing.T) {
	srv := newTestMCPServer(t, newFact("supply chain", 0.92))
	ctx := context.Background()

	result, err := srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"user_id":   "user-1",
		"utterance": "I led supply chain for eight years",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = srv.HandleStats(ctx, toolRequest("stats", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var stats models.PipelineStats
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &stats))
	assert.Equal(t, int64(1), stats.TotalRecords)
}

func TestNilDependencies(t *testing.T) {
	srv := NewServer(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	result, err := srv.HandleProcessUtterance(ctx, toolRequest("process_utterance", map[string]any{
		"user_id": "user-1", "utterance": "anything at all",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = srv.HandleStats(ctx, toolRequest("stats", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

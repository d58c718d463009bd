package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fractionalquest/voicegraph/internal/config"
	"github.com/fractionalquest/voicegraph/internal/extractor"
	"github.com/fractionalquest/voicegraph/internal/graph"
	"github.com/fractionalquest/voicegraph/internal/queue"
	"github.com/fractionalquest/voicegraph/internal/reconcile"
	"github.com/fractionalquest/voicegraph/internal/router"
	"github.com/fractionalquest/voicegraph/internal/store"
	syncpipe "github.com/fractionalquest/voicegraph/internal/sync"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:   "voicegraph",
		Short: "voicegraph - voice-to-graph synchronization pipeline",
		Long:  "voicegraph extracts facts from voice transcripts, mirrors them into a fast graph for instant feedback, and reconciles confirmed facts into the durable store of record.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		processCmd(),
		pendingCmd(),
		resolveCmd(),
		sweepCmd(),
		rebuildCmd(),
		statsCmd(),
		healthCmd(),
		mcpCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil && cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	st, err := store.NewSQLiteStore(cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newFastPath connects the graph writer. A connection failure degrades to the
// no-op writer: the fast path is a cache, never a reason to refuse service.
func newFastPath(ctx context.Context, logger *slog.Logger) graph.Writer {
	if !cfg.Neo4j.Enabled {
		logger.Info("fast-path graph disabled by config")
		return graph.NewBestEffort(graph.NoopWriter{}, logger)
	}
	w, err := graph.NewNeo4jWriter(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database, logger)
	if err != nil {
		logger.Warn("fast-path graph unavailable, continuing without it", "error", err)
		return graph.NewBestEffort(graph.NoopWriter{}, logger)
	}
	return graph.NewBestEffort(w, logger)
}

func newOrchestrator(st store.Store, fastPath graph.Writer, logger *slog.Logger) (*syncpipe.Orchestrator, error) {
	rt, err := router.New(router.Thresholds{
		High: cfg.Pipeline.HighThreshold,
		Low:  cfg.Pipeline.LowThreshold,
	}, cfg.Pipeline.HardKeywords)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}

	ext := extractor.NewClaudeExtractor(cfg.Claude.APIKey, cfg.Claude.Model, cfg.Pipeline.MinUtteranceChars, logger)
	q := queue.New(st, time.Duration(cfg.Pipeline.ConfirmationTTLHours)*time.Hour, logger)
	w := reconcile.NewWriter(st, logger)

	return syncpipe.New(ext, rt, fastPath, q, w, st, syncpipe.RetryPolicy{
		MaxAttempts: cfg.Pipeline.CommitMaxAttempts,
		BaseBackoff: time.Duration(cfg.Pipeline.CommitBackoffMillis) * time.Millisecond,
	}, logger), nil
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return s
}

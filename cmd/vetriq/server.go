package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/mkravets/vetriq/internal/api"
	"github.com/mkravets/vetriq/internal/config"
	"github.com/mkravets/vetriq/internal/evaluate"
	"github.com/mkravets/vetriq/internal/fusion"
	"github.com/mkravets/vetriq/internal/interview"
	"github.com/mkravets/vetriq/internal/llm"
	"github.com/mkravets/vetriq/internal/retrieval"
	"github.com/mkravets/vetriq/internal/session"
	"github.com/mkravets/vetriq/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vetriq interview server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// newEngine builds the configured inference backend.
func newEngine(ctx context.Context, cfg config.Config) (llm.Engine, error) {
	switch cfg.LLM.Backend {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey)
	default:
		return llm.NewOllamaClient(cfg.LLM.OllamaURL), nil
	}
}

// buildCore wires the interview core onto an open store and engine. Shared by
// the server and the terminal REPL.
func buildCore(cfg config.Config, eng llm.Engine, store *storage.Store) (*interview.Loop, *session.Store, *retrieval.Indexer, *fusion.Engine) {
	embedder := retrieval.NewEmbedder(eng, cfg.LLM.EmbedModel)
	vectors := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectors)
	indexer := retrieval.NewIndexer(embedder, vectors)

	subQueryTimeout, err := time.ParseDuration(cfg.Retrieval.SubQueryTimeout)
	if err != nil {
		slog.Warn("invalid sub-query timeout, using default 10s",
			"value", cfg.Retrieval.SubQueryTimeout, "error", err)
		subQueryTimeout = 10 * time.Second
	}

	searchAdapter := searcherFunc(func(ctx context.Context, resumeID, query string, topK int) ([]retrieval.Chunk, error) {
		return retriever.Retrieve(ctx, resumeID, query, topK)
	})
	fusionEngine := fusion.New(eng, cfg.LLM.ChatModel, searchAdapter, cfg.Retrieval.TopK, subQueryTimeout)

	evaluator := evaluate.New(eng, cfg.LLM.ChatModel)
	loop := interview.New(eng, cfg.LLM.ChatModel, fusionEngine, evaluator, cfg.Interview.ResumePhaseQuestions)
	sessions := session.NewStore(store)

	return loop, sessions, indexer, fusionEngine
}

type searcherFunc func(ctx context.Context, resumeID, query string, topK int) ([]retrieval.Chunk, error)

func (f searcherFunc) Retrieve(ctx context.Context, resumeID, query string, topK int) ([]retrieval.Chunk, error) {
	return f(ctx, resumeID, query, topK)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "vetriq version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing llm backend: %w", err)
	}
	if !eng.IsRunning(ctx) {
		slog.Warn("llm backend is not reachable; interviews will degrade to fallback questions",
			"backend", cfg.LLM.Backend)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	uploadDir := filepath.Join(cfg.Storage.DataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}

	loop, sessions, indexer, fusionEngine := buildCore(cfg, eng, store)
	broker := api.NewBroker()

	handler := api.NewAppHandler(api.AppDeps{
		Store:        store,
		Sessions:     sessions,
		Loop:         loop,
		Indexer:      indexer,
		Retriever:    fusionEngine,
		Engine:       eng,
		ChatModel:    cfg.LLM.ChatModel,
		Broker:       broker,
		UploadDir:    uploadDir,
		MaxQuestions: cfg.Interview.MaxQuestions,
		ChunkSize:    cfg.Interview.ChunkSize,
		ChunkOverlap: cfg.Interview.ChunkOverlap,
	})

	// MCP server over stdio, alongside HTTP.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Sessions:  sessions,
		Retriever: fusionEngine,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("vetriq listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

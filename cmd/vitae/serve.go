package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/vitaelabs/vitae/internal/agent"
	"github.com/vitaelabs/vitae/internal/api"
	"github.com/vitaelabs/vitae/internal/chunker"
	"github.com/vitaelabs/vitae/internal/cloud"
	"github.com/vitaelabs/vitae/internal/config"
	"github.com/vitaelabs/vitae/internal/docs"
	"github.com/vitaelabs/vitae/internal/engine"
	"github.com/vitaelabs/vitae/internal/retrieval"
	"github.com/vitaelabs/vitae/internal/storage"
	"github.com/vitaelabs/vitae/internal/synthesis"
	"github.com/vitaelabs/vitae/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vitae server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpMode, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcpMode)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func runServer(mcpMode bool) error {
	fmt.Fprintf(os.Stderr, "vitae version %s\n", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	// Logs go to stderr; stdout stays free for the MCP stdio transport.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check local inference engine readiness.
	eng := engine.NewOllamaEngine(cfg.Ollama.BaseURL)
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Build the query engine.
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	retriever := retrieval.NewRetriever(embedder, cfg.Retrieval.TopK)

	var generator synthesis.Generator
	if cfg.Synthesis.Provider == "cloud" {
		if cfg.Cloud.BaseURL != "" {
			generator = cloud.NewClientWithBaseURL(cfg.Cloud.APIKey, cfg.Cloud.Model, cfg.Cloud.BaseURL)
		} else {
			generator = cloud.NewClient(cfg.Cloud.APIKey, cfg.Cloud.Model)
		}
	} else {
		generator = synthesis.NewEngineGenerator(eng, cfg.Ollama.ChatModel)
	}

	synth := synthesis.New(generator, synthesis.Config{
		MinConfidence:   cfg.Retrieval.MinConfidence,
		MaxContextChars: cfg.Synthesis.MaxContextChars,
		Timeout:         parseDurationOr(cfg.Synthesis.Timeout, synthesis.DefaultTimeout),
	})

	ag := agent.New(agent.Deps{
		Loader:      docs.NewLoader(),
		Store:       store,
		Embedder:    embedder,
		Retriever:   retriever,
		Synthesizer: synth,
		Chunker:     chunker.New(cfg.Chunking.TargetChars, cfg.Chunking.OverlapChars, cfg.Chunking.BoundaryTolerance),
		DocsDir:     cfg.Docs.Dir,
		Logger:      slog.Default(),
	})

	// Warm the index from persisted chunks; build fresh only when empty, so
	// restarts don't re-embed an unchanged corpus.
	if err := ag.WarmFromStore(); err != nil {
		return fmt.Errorf("warming index from storage: %w", err)
	}
	if ag.Summary().Chunks == 0 {
		slog.Info("index empty, running initial ingest", "dir", cfg.Docs.Dir)
		report, err := ag.Ingest(ctx, "")
		if err != nil {
			slog.Warn("initial ingest failed", "error", err)
		} else {
			slog.Info("initial ingest complete", "documents", report.Documents, "chunks", report.Chunks)
		}
	}

	// Watch the document directory and re-index on changes.
	if cfg.Watch.Enabled {
		debounce := parseDurationOr(cfg.Watch.Debounce, 2*time.Second)
		watcher := watch.New(cfg.Docs.Dir, debounce, func(wctx context.Context) {
			if _, err := ag.Ingest(wctx, ""); err != nil {
				slog.Error("re-index failed", "error", err)
			}
		}, slog.Default())
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("document watcher stopped", "error", err)
			}
		}()
	}

	// Loopback only. Exposing this beyond localhost is a reverse proxy's job.
	handler := api.NewHandler(api.Deps{Agent: ag, Token: cfg.Server.Token})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start MCP server (stdio transport) when requested.
	if mcpMode {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Agent: ag, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("mcp stdio transport failed", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "vitae listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Block until a shutdown signal arrives or the listener dies.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Let in-flight requests finish, but not indefinitely.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// parseDurationOr parses a duration string from the config, falling back to
// def when it is empty or does not parse.
func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration in config, using default", "value", s, "default", def)
		return def
	}
	return d
}

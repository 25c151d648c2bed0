// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/checkpoint"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/mirror"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/remote"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/sse"
	"github.com/starford/othala/internal/syncer"
	"github.com/starford/othala/internal/transform"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. MCP mode owns stdout, so logs go
	// to stderr there.
	logOut := os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("cache_root", cfg.Cache.Root),
		slog.String("index_path", cfg.Index.Path),
		slog.String("remote_base_url", cfg.Remote.BaseURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize cache store.
	store, err := cache.NewFS(cfg.Cache.Root)
	if err != nil {
		return fmt.Errorf("init cache store: %w", err)
	}

	// Initialize SQLite search index.
	db, err := search.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init search index: %w", err)
	}
	defer db.Close()

	// Initialize checkpoint store.
	checkpoints, err := checkpoint.Open(cfg.Checkpoint.Path)
	if err != nil {
		return fmt.Errorf("init checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	// Remote client and transform pipeline.
	client := remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.Token, nil)
	html := transform.NewHTML()
	pipeline := indexer.Pipeline{
		Converter:  html,
		Assets:     html,
		Links:      html,
		Downloader: transform.NewHTTPDownloader(cfg.Indexing.Concurrency),
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	ix := indexer.New(client, store, db, pipeline, logger,
		indexer.Config{
			Concurrency:     cfg.Indexing.Concurrency,
			CheckpointEvery: cfg.Indexing.CheckpointEvery,
			MaxErrors:       cfg.Indexing.MaxErrors,
		},
		indexer.WithProgressCallback(broker.PublishProgress),
		indexer.WithCheckpointCallback(func(cp *models.Checkpoint) {
			if err := checkpoints.Put(cp); err != nil {
				logger.Warn("checkpoint persist failed",
					slog.String("operation", cp.OperationID), slog.String("error", err.Error()))
			}
		}),
	)

	sy := syncer.New(client, store, db, ix, logger, cfg.Sync.SkewWindow())

	svc := mirror.NewService(store, db, checkpoints, ix, sy, logger, cfg.Sync.LeaseTTL())

	// MCP stdio mode: serve tools over stdin/stdout and exit when the peer
	// disconnects.
	if app.mcp {
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api (SSE endpoint included).
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start cache-tree watcher with SSE callback.
	if cfg.Watcher.Enabled {
		g.Go(func() error {
			err := search.Watch(gCtx, db, cfg.Cache.Root, logger, func(kind, userID, pageID string) {
				broker.Publish(sse.Event{Type: "page." + kind, Data: map[string]string{
					"user_id": userID,
					"page_id": pageID,
				}})
			})
			if err != nil {
				logger.Warn("watcher exited", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

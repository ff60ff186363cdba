// Codebot - React/TypeScript code assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/codebot/internal/api"
	"github.com/ashureev/codebot/internal/config"
	"github.com/ashureev/codebot/internal/conversation"
	"github.com/ashureev/codebot/internal/events"
	"github.com/ashureev/codebot/internal/healthcheck"
	"github.com/ashureev/codebot/internal/middleware"
	"github.com/ashureev/codebot/internal/model"
	"github.com/ashureev/codebot/internal/orchestrator"
	"github.com/ashureev/codebot/internal/store"
	"github.com/ashureev/codebot/internal/toolchain"
	"github.com/ashureev/codebot/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"container", config.IsContainer(),
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
	)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	client, err := model.New(model.Config{
		Provider: cfg.Model.Provider,
		Model:    cfg.Model.Name,
		APIKey:   cfg.ModelAPIKey(),
		BaseURL:  cfg.ModelBaseURL(),
		Timeout:  cfg.Model.Timeout,
	})
	if err != nil {
		slog.Error("Failed to initialize model client", "error", err)
		os.Exit(1)
	}

	executor, closeExecutor, err := newExecutor(cfg)
	if err != nil {
		slog.Error("Failed to initialize tool executor", "error", err)
		os.Exit(1)
	}
	defer closeExecutor()

	runner := toolchain.NewRunner(executor, toolchain.WorkspaceConfig{
		Root:           cfg.Workspace.Root,
		NodeModulesDir: cfg.Workspace.NodeModulesDir,
		Keep:           cfg.Workspace.Keep,
	}, toolchain.Commands{
		Prettier:   toolchain.ParseCommand(cfg.Tools.PrettierCmd),
		TypeScript: toolchain.ParseCommand(cfg.Tools.TSCCmd),
		ESLint:     toolchain.ParseCommand(cfg.Tools.ESLintCmd),
	})

	// Initialize services.
	hub := events.NewHub(events.DefaultQueueSize)
	svc := orchestrator.NewService(repo, client, runner, hub, orchestrator.Options{
		SystemPrompt: cfg.Model.SystemPrompt,
		MaxTokens:    cfg.Model.MaxTokens,
		Model:        cfg.Model.Name,
	})

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, svc, api.Info{
		Provider:    cfg.Model.Provider,
		Model:       cfg.Model.Name,
		MaxAttempts: orchestrator.MaxAttempts,
	})
	wsHandler := events.NewHandler(hub, svc, events.HandlerConfig{
		OriginPatterns: originPatterns(cfg),
		SubmitLimit:    cfg.Submit.RateLimit,
		SubmitWindow:   cfg.Submit.RateWindow,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	apiHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.With(conversation.Middleware).Get("/ws", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.Handler())

	// WebSocket connections are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	toolchain.StartJanitor(ctx, cfg.Workspace.Root, cfg.Workspace.TTL)
	slog.Info("Workspace janitor started", "root", cfg.Workspace.Root, "ttl", cfg.Workspace.TTL)

	var health *healthcheck.Server
	if cfg.GRPCHealthAddr != "" {
		health = healthcheck.New(repo, 0)
		go func() {
			if err := health.ListenAndServe(ctx, cfg.GRPCHealthAddr); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if health != nil {
		health.Stop()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Let running submissions publish their verdicts before the hub goes away.
	if err := wsHandler.Wait(shutdownCtx); err != nil {
		slog.Warn("Socket submissions still running at shutdown", "error", err)
	}
	if err := apiHandler.Wait(shutdownCtx); err != nil {
		slog.Warn("HTTP submissions still running at shutdown", "error", err)
	}
	hub.Close()

	slog.Info("Server stopped successfully")
}

func newExecutor(cfg *config.Config) (toolchain.Executor, func(), error) {
	if cfg.Tools.Executor != "docker" {
		slog.Info("Running tools on the host", "timeout", cfg.Tools.Timeout)
		return toolchain.NewLocalExecutor(cfg.Tools.Timeout), func() {}, nil
	}

	exec, err := toolchain.NewDockerExecutor(cfg.Tools.Image, cfg.Tools.Timeout)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.Ping(ctx); err != nil {
		_ = exec.Close()
		return nil, nil, err
	}
	slog.Info("Running tools in Docker", "image", cfg.Tools.Image, "timeout", cfg.Tools.Timeout)

	return exec, func() {
		if err := exec.Close(); err != nil {
			slog.Error("Failed to close docker client", "error", err)
		}
	}, nil
}

// originPatterns converts allowed origins into websocket.Accept host patterns.
func originPatterns(cfg *config.Config) []string {
	if cfg.IsDevelopment() && len(cfg.AllowedOrigins) == 0 {
		return []string{"localhost:*", "127.0.0.1:*"}
	}
	patterns := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// PersonaDesk - AI persona dashboard server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayeresko/personadesk/internal/api"
	"github.com/ayeresko/personadesk/internal/chat"
	"github.com/ayeresko/personadesk/internal/config"
	"github.com/ayeresko/personadesk/internal/generation"
	"github.com/ayeresko/personadesk/internal/identity"
	"github.com/ayeresko/personadesk/internal/metrics"
	"github.com/ayeresko/personadesk/internal/middleware"
	"github.com/ayeresko/personadesk/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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
	slog.Info("Database connected")

	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, only users with their own key can chat")
	}

	// Initialize services.
	m := metrics.New(prometheus.DefaultRegisterer)
	gateway := generation.NewGateway(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTimeout)
	orchestrator := chat.NewOrchestrator(repo, gateway, m)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg)
	chatHandler := chat.NewHandler(orchestrator)
	wsHandler := chat.NewWebSocketHandler(orchestrator, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	// The anon cookie only flows cross-origin for explicit origins, so
	// list the frontend alongside the wildcard.
	corsOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		corsOrigins = append(corsOrigins, cfg.FrontendURL)
	}
	r.Use(middleware.CORS(corsOrigins))

	// Metrics endpoint stays outside the identity middleware.
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg))

		baseHandler.RegisterHealth(r)
		baseHandler.RegisterAccountRoutes(r)
		baseHandler.RegisterAgentRoutes(r)
		baseHandler.RegisterLinkRoutes(r)
		baseHandler.RegisterAppRoutes(r)
		chatHandler.RegisterRoutes(r)

		// WebSocket endpoint for streamed chat turns.
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server.
	// Note: streamed responses need long writes (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

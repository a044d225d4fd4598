// Accord - Perspective Reconciliation Server
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

	"github.com/ashureev/accord-labs/internal/analyzer"
	"github.com/ashureev/accord-labs/internal/api"
	"github.com/ashureev/accord-labs/internal/audit"
	"github.com/ashureev/accord-labs/internal/config"
	"github.com/ashureev/accord-labs/internal/identity"
	"github.com/ashureev/accord-labs/internal/middleware"
	"github.com/ashureev/accord-labs/internal/notify"
	"github.com/ashureev/accord-labs/internal/reconciler"
	"github.com/ashureev/accord-labs/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	auditLog, err := audit.NewLogger(audit.Config{
		Enabled:       cfg.AuditLog.Enabled,
		Dir:           cfg.AuditLog.Dir,
		GlobalEnabled: cfg.AuditLog.GlobalEnabled,
		GlobalPath:    cfg.AuditLog.GlobalPath,
		QueueSize:     cfg.AuditLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize audit logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := auditLog.Close(); closeErr != nil {
			slog.Error("Failed to close audit logger", "error", closeErr)
		}
	}()

	gapAnalyzer, err := analyzer.NewClient(analyzer.Config{
		URL:            cfg.GapAnalyzerURL,
		RequestTimeout: cfg.AnalyzerTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize gap analyzer client", "error", err)
		os.Exit(1)
	}
	slog.Info("Gap analyzer client initialized", "url", cfg.GapAnalyzerURL)

	// Initialize services.
	hub := notify.NewHub()
	engine := reconciler.NewEngine(repo, gapAnalyzer, hub, auditLog, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, engine, cfg.FrontendURL)
	sessionHandler := api.NewSessionHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := notify.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// All routes use identity middleware (no auth needed).
	sessionHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/events", wsHandler.ServeHTTP)

	// Create server.
	// Note: WebSocket connections require long timeouts (no WriteTimeout).
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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/campuskit/be-fin-approvals/internal/client"
	"github.com/campuskit/be-fin-approvals/internal/config"
	"github.com/campuskit/be-fin-approvals/internal/engine"
	"github.com/campuskit/be-fin-approvals/internal/handler"
	"github.com/campuskit/be-fin-approvals/internal/repository"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Financial Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database pool")
	}
	defer db.Close()
	log.Info().Msg("Database pool created")

	// Load and validate the approval rule registry. Gaps or overlaps in the
	// tier partition abort startup.
	registryCfg := engine.DefaultRegistryConfig()
	if cfg.RulesFile != "" {
		registryCfg, err = config.LoadRules(cfg.RulesFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.RulesFile).Msg("Failed to load approval rules")
		}
		log.Info().Str("path", cfg.RulesFile).Msg("Approval rules loaded from file")
	}
	registry, err := engine.NewRegistry(registryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Approval rule configuration is invalid")
	}

	// Notification sink: NATS when configured, log-only otherwise.
	var notifier engine.NotificationSink
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		notifier = client.NewNotificationPublisher(nc, log)
		log.Info().Str("nats_url", cfg.NATS.URL).Msg("NATS notification publisher initialized")
	} else {
		notifier = client.NewLogNotifier(log)
		log.Warn().Msg("NATS_URL not set; notifications are log-only")
	}

	// Wire the engine
	checkCfg := engine.DefaultCheckConfig()
	history := repository.NewHistoryRepository(db)
	budgets := repository.NewBudgetRepository(db)
	identity := repository.NewIdentityRepository(db)
	audit := repository.NewAuditRepository(db)

	processor := engine.NewProcessor(
		registry,
		engine.NewCheckBattery(history, budgets, registry, checkCfg),
		engine.NewResolver(registry, checkCfg.AutoApproveCeiling),
		engine.NewChainBuilder(identity, log),
		engine.NewQueue(),
		notifier,
		audit,
		log,
	)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(processor, log)

	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(req).Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	httpHandler.Routes(r)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// newLogger builds the service logger: JSON in production, console writer in
// development.
func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout)
	if cfg.Service.Environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.With().
		Timestamp().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Logger()
}

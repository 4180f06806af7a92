package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"financeflow/internal/backend"
	"financeflow/internal/backend/memory"
	"financeflow/internal/config"
	"financeflow/internal/events"
	"financeflow/internal/expenses"
	"financeflow/internal/goals"
	apphttp "financeflow/internal/http"
	applog "financeflow/internal/log"
	"financeflow/internal/profile"
	"financeflow/internal/session"
	"financeflow/internal/storage"
)

func main() {
	// .env is optional, real environments set variables directly
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", applog.FieldError, err)
		os.Exit(1)
	}

	// Choose data backend (default: memory).
	var store backend.Backend
	switch cfg.DataBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.SessionTTL)
		if err != nil {
			logger.Error("Failed to initialize SQLite backend", applog.FieldError, err)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	default:
		store = memory.New(cfg.SessionTTL)
		logger.Info("Initialized memory backend")
	}

	// Audit stream is optional: without AMQP_URL expense events are skipped.
	var publisher expenses.Publisher
	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to connect to AMQP", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	sessions := session.New(store, logger)
	profiles := profile.NewCache(store, logger)
	goalStore := goals.NewStore(store, logger)
	expenseSvc := expenses.NewService(store, publisher, logger)

	if err := sessions.Start(context.Background()); err != nil {
		logger.Error("Failed to start session store", applog.FieldError, err)
		os.Exit(1)
	}
	defer sessions.Stop()

	if err := profiles.Bind(sessions); err != nil {
		logger.Error("Failed to bind profile cache", applog.FieldError, err)
		os.Exit(1)
	}
	defer profiles.Close()

	if err := goalStore.Bind(sessions); err != nil {
		logger.Error("Failed to bind goal store", applog.FieldError, err)
		os.Exit(1)
	}
	defer goalStore.Close()

	srv := apphttp.NewServer(":"+cfg.Port, sessions, profiles, goalStore, expenseSvc, logger, apphttp.Options{
		DashboardCacheSize: cfg.DashboardCacheSize,
		DashboardCacheTTL:  cfg.DashboardCacheTTL,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting financeflow server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

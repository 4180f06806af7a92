// financeflow-auditor consumes the expense event stream and writes an
// audit line per event. It runs next to the server wherever an AMQP
// broker is configured.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"financeflow/internal/config"
	"financeflow/internal/events"
	applog "financeflow/internal/log"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the auditor")
		os.Exit(1)
	}

	client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	audit := logger.WithComponent(applog.ComponentEvents)
	logger.Info("Starting financeflow-auditor", "queue", cfg.AMQPQueue)
	err = client.ConsumeExpenses(ctx, func(msg *events.ExpenseMessage) error {
		audit.Info("Expense event",
			"action", msg.Action,
			applog.FieldUserID, msg.UserID,
			applog.FieldExpenseID, msg.ExpenseID,
			applog.FieldAmount, msg.Amount,
			applog.FieldCategory, msg.Category,
			"occurred_at", msg.Timestamp)
		return nil
	})
	if err != nil && err != context.Canceled {
		logger.Error("Event consumption failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Auditor stopped")
}

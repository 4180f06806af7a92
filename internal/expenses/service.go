// Package expenses orchestrates expense operations across the backend
// repository and the audit event stream.
package expenses

import (
	"context"
	"fmt"

	"financeflow/internal/backend"
	"financeflow/internal/core"
	"financeflow/internal/events"
	applog "financeflow/internal/log"
)

// Publisher is the slice of the events client the service needs.
type Publisher interface {
	PublishExpense(ctx context.Context, msg *events.ExpenseMessage) error
}

// Service wraps the expense repository with validation and best-effort
// audit publishing. Audit failures never fail the originating request:
// the expense is already persisted.
type Service struct {
	repo      backend.ExpenseRepository
	publisher Publisher
	log       *applog.Logger
}

func NewService(repo backend.ExpenseRepository, publisher Publisher, logger *applog.Logger) *Service {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		log:       logger.WithComponent(applog.ComponentExpenses),
	}
}

// List returns the user's expenses, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]core.Expense, error) {
	items, err := s.repo.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

// Add validates and persists a new expense, then publishes the audit
// event.
func (s *Service) Add(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.repo.InsertExpense(ctx, userID, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, events.NewExpenseCreated(
		userID, saved.ID, saved.Amount.Decimal(), saved.Category))

	s.log.InfoContext(ctx, "Expense added",
		applog.FieldUserID, userID,
		applog.FieldExpenseID, saved.ID,
		applog.FieldCategory, saved.Category,
		applog.FieldAmount, saved.Amount.Decimal())
	return saved, nil
}

// Delete removes an expense by id and publishes the audit event. A
// missing id surfaces as backend.ErrNotFound.
func (s *Service) Delete(ctx context.Context, userID, expenseID string) error {
	if err := s.repo.DeleteExpense(ctx, userID, expenseID); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.publish(ctx, events.NewExpenseDeleted(userID, expenseID))

	s.log.InfoContext(ctx, "Expense deleted",
		applog.FieldUserID, userID,
		applog.FieldExpenseID, expenseID)
	return nil
}

func (s *Service) publish(ctx context.Context, msg *events.ExpenseMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpense(ctx, msg); err != nil {
		s.log.WarnContext(ctx, "Failed to publish expense event",
			applog.FieldExpenseID, msg.ExpenseID, applog.FieldError, err)
	}
}

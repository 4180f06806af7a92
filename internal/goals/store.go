// Package goals keeps the monthly and yearly spending goals for the
// active identity in memory, backed by the goals repository.
package goals

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"financeflow/internal/backend"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/session"
)

// Store caches the active user's goals. An absent backend row is the
// default state {0, 0}, not an error. Writes validate first and commit to
// memory only after the backend accepts them, so a rejected or failed save
// never corrupts the in-memory values.
type Store struct {
	repo backend.GoalsRepository
	log  *applog.Logger

	mu         sync.Mutex
	activeUser string
	goals      core.SpendingGoals
	loading    bool

	unsubscribe func()
}

func NewStore(repo backend.GoalsRepository, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Store{
		repo: repo,
		log:  logger.WithComponent(applog.ComponentGoals),
	}
}

// Bind attaches the store to the session store: goals load when an
// identity appears and reset to zero when it goes away.
func (s *Store) Bind(sessions *session.Store) error {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return errors.New("goal store already bound")
	}
	s.mu.Unlock()

	unsub := sessions.Subscribe(s.onIdentityChange)
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()

	if id := sessions.Identity(); id != nil {
		s.onIdentityChange(id)
	}
	return nil
}

// Close releases the session subscription.
func (s *Store) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Goals returns the current goals and whether the initial load is still in
// flight.
func (s *Store) Goals() (core.SpendingGoals, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goals, s.loading
}

// HasGoals reports whether the user configured at least one goal.
func (s *Store) HasGoals() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goals.HasGoals()
}

// Load fetches the goals for userID and replaces the in-memory values. A
// missing row means the user never saved goals: {0, 0}.
func (s *Store) Load(ctx context.Context, userID string) (core.SpendingGoals, error) {
	g, err := s.repo.GetGoals(ctx, userID)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		s.mu.Lock()
		if s.activeUser == userID {
			s.loading = false
		}
		s.mu.Unlock()
		return core.SpendingGoals{}, fmt.Errorf("load goals: %w", err)
	}

	s.mu.Lock()
	if s.activeUser == userID {
		s.goals = g
		s.loading = false
	}
	s.mu.Unlock()
	return g, nil
}

// SetGoals validates and persists new goals, then commits them to memory.
// Validation rejects negative amounts and, when both goals are set, a
// yearly goal below the monthly one. On persistence failure the in-memory
// goals stay unchanged.
func (s *Store) SetGoals(ctx context.Context, userID string, g core.SpendingGoals) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpsertGoals(ctx, userID, g); err != nil {
		s.log.ErrorContext(ctx, "Saving goals failed",
			applog.FieldUserID, userID, applog.FieldError, err)
		return fmt.Errorf("save goals: %w", err)
	}

	s.mu.Lock()
	if s.activeUser == userID {
		s.goals = g
	}
	s.mu.Unlock()
	s.log.InfoContext(ctx, "Goals updated",
		applog.FieldUserID, userID,
		"monthly", g.Monthly.Decimal(), "yearly", g.Yearly.Decimal())
	return nil
}

func (s *Store) onIdentityChange(id *core.Identity) {
	s.mu.Lock()
	if id == nil {
		s.activeUser = ""
		s.goals = core.SpendingGoals{}
		s.loading = false
		s.mu.Unlock()
		return
	}
	s.activeUser = id.ID
	s.goals = core.SpendingGoals{}
	s.loading = true
	userID := id.ID
	s.mu.Unlock()

	go func() {
		if _, err := s.Load(context.Background(), userID); err != nil {
			s.log.Warn("Background goals load failed",
				applog.FieldUserID, userID, applog.FieldError, err)
		}
	}()
}

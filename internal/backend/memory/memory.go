// Package memory implements the backend contract in process memory. It is
// the default for dev runs and the workhorse of the test suites.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"financeflow/internal/backend"
	"financeflow/internal/core"
)

type account struct {
	id       string
	email    string
	password string
	profile  core.Profile
}

type Store struct {
	mu         sync.Mutex
	sessionTTL time.Duration

	accounts map[string]*account // keyed by email
	goals    map[string]core.SpendingGoals
	expenses map[string][]core.Expense
	nextID   int64

	active   *core.Session
	sessions map[string]core.Session // keyed by token

	watchers    map[int]func(backend.SessionEvent)
	nextWatcher int
}

func New(sessionTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &Store{
		sessionTTL: sessionTTL,
		accounts:   make(map[string]*account),
		goals:      make(map[string]core.SpendingGoals),
		expenses:   make(map[string][]core.Expense),
		sessions:   make(map[string]core.Session),
		watchers:   make(map[int]func(backend.SessionEvent)),
	}
}

func (s *Store) Register(_ context.Context, reg backend.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[reg.Email]; exists {
		return &backend.RegistrationError{Message: "email already registered"}
	}
	id := newToken(8)
	s.accounts[reg.Email] = &account{
		id:       id,
		email:    reg.Email,
		password: reg.Password,
		profile: core.Profile{
			ID:             id,
			Email:          reg.Email,
			FullName:       reg.FullName,
			Country:        reg.Country,
			CurrencyCode:   reg.Currency.Code,
			CurrencySymbol: reg.Currency.Symbol,
		},
	}
	return nil
}

func (s *Store) Authenticate(_ context.Context, email, password string) (*core.Session, error) {
	s.mu.Lock()
	acc, ok := s.accounts[email]
	if !ok || acc.password != password {
		s.mu.Unlock()
		return nil, backend.ErrInvalidCredentials
	}
	sess := core.Session{
		Token:     newToken(16),
		UserID:    acc.id,
		Email:     acc.email,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}
	s.sessions[sess.Token] = sess
	s.active = &sess
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	ev := sess
	emit(watchers, backend.SessionEvent{Type: backend.SessionSignedIn, Session: &ev})
	return &sess, nil
}

func (s *Store) InvalidateSession(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	if s.active != nil && s.active.Token == token {
		s.active = nil
	}
	watchers := s.snapshotWatchers()
	s.mu.Unlock()

	emit(watchers, backend.SessionEvent{Type: backend.SessionSignedOut})
	return nil
}

func (s *Store) CurrentSession(_ context.Context) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.Expired(time.Now()) {
		return nil, backend.ErrNotFound
	}
	sess := *s.active
	return &sess, nil
}

func (s *Store) WatchSessions(fn func(backend.SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// Emit pushes an arbitrary session event to all watchers. Tests use it to
// simulate external expiry and cross-device sign-out.
func (s *Store) Emit(ev backend.SessionEvent) {
	s.mu.Lock()
	if ev.Session == nil {
		s.active = nil
	} else {
		sess := *ev.Session
		s.active = &sess
	}
	watchers := s.snapshotWatchers()
	s.mu.Unlock()
	emit(watchers, ev)
}

func (s *Store) GetProfile(_ context.Context, userID string) (*core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.id == userID {
			p := acc.profile
			return &p, nil
		}
	}
	return nil, backend.ErrNotFound
}

func (s *Store) GetGoals(_ context.Context, userID string) (core.SpendingGoals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[userID]
	if !ok {
		return core.SpendingGoals{}, backend.ErrNotFound
	}
	return g, nil
}

func (s *Store) UpsertGoals(_ context.Context, userID string, g core.SpendingGoals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[userID] = g
	return nil
}

func (s *Store) ListExpenses(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.expenses[userID]
	out := make([]core.Expense, len(items))
	copy(out, items)
	return out, nil
}

func (s *Store) InsertExpense(_ context.Context, userID string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = "mem:" + strconv.FormatInt(s.nextID, 10)
	// Newest first, matching the app's transaction list.
	s.expenses[userID] = append([]core.Expense{e}, s.expenses[userID]...)
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.expenses[userID]
	for i, e := range items {
		if e.ID == id {
			s.expenses[userID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return backend.ErrNotFound
}

func (s *Store) snapshotWatchers() []func(backend.SessionEvent) {
	out := make([]func(backend.SessionEvent), 0, len(s.watchers))
	for _, fn := range s.watchers {
		out = append(out, fn)
	}
	return out
}

func emit(watchers []func(backend.SessionEvent), ev backend.SessionEvent) {
	for _, fn := range watchers {
		fn(ev)
	}
}

func newToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

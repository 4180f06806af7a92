package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeflow/internal/backend"
	"financeflow/internal/core"
)

func registration(email string) backend.Registration {
	return backend.Registration{
		Email:    email,
		Password: "secret123",
		FullName: "Test User",
		Country:  "US",
		Currency: core.Currency{Code: "USD", Symbol: "$"},
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	if err := s.Register(ctx, registration("a@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}

	var regErr *backend.RegistrationError
	if err := s.Register(ctx, registration("a@example.com")); !errors.As(err, &regErr) {
		t.Fatalf("duplicate email should fail with RegistrationError, got %v", err)
	}

	sess, err := s.Authenticate(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if sess.Token == "" || sess.UserID == "" {
		t.Fatalf("incomplete session %+v", sess)
	}
	if sess.ExpiresAt.Before(time.Now()) {
		t.Fatal("session must expire in the future")
	}

	if _, err := s.Authenticate(ctx, "a@example.com", "wrong"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody@example.com", "secret123"); !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	if _, err := s.CurrentSession(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("fresh store must have no session, got %v", err)
	}

	if err := s.Register(ctx, registration("a@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, err := s.Authenticate(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	got, err := s.CurrentSession(ctx)
	if err != nil || got.Token != sess.Token {
		t.Fatalf("current session: %+v err=%v", got, err)
	}

	if err := s.InvalidateSession(ctx, sess.Token); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := s.CurrentSession(ctx); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("invalidated session still current, err=%v", err)
	}
}

func TestWatchSessions(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	var seen []backend.SessionEventType
	unsub := s.WatchSessions(func(ev backend.SessionEvent) {
		seen = append(seen, ev.Type)
	})

	if err := s.Register(ctx, registration("a@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, err := s.Authenticate(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := s.InvalidateSession(ctx, sess.Token); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	want := []backend.SessionEventType{backend.SessionSignedIn, backend.SessionSignedOut}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], seen[i])
		}
	}

	unsub()
	if _, err := s.Authenticate(ctx, "a@example.com", "secret123"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatal("unsubscribed watcher still notified")
	}
}

func TestProfileAndGoals(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	if err := s.Register(ctx, registration("a@example.com")); err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, err := s.Authenticate(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	p, err := s.GetProfile(ctx, sess.UserID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if p.Email != "a@example.com" || p.CurrencyCode != "USD" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := s.GetProfile(ctx, "nobody"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.GetGoals(ctx, sess.UserID); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unset goals, got %v", err)
	}
	want := core.SpendingGoals{Monthly: core.Money{Cents: 1000}, Yearly: core.Money{Cents: 20000}}
	if err := s.UpsertGoals(ctx, sess.UserID, want); err != nil {
		t.Fatalf("upsert goals: %v", err)
	}
	g, err := s.GetGoals(ctx, sess.UserID)
	if err != nil || g != want {
		t.Fatalf("get goals: %+v err=%v", g, err)
	}
}

func TestExpenses(t *testing.T) {
	s := New(time.Hour)
	ctx := context.Background()

	e := core.Expense{
		Date:        core.NewDate(2026, 8, 20),
		Description: "Coffee",
		Amount:      core.Money{Cents: 350},
		Category:    "Food & Dining",
	}
	saved, err := s.InsertExpense(ctx, "u1", e)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("insert must mint an id")
	}

	bad := e
	bad.Amount = core.Money{}
	if _, err := s.InsertExpense(ctx, "u1", bad); err == nil {
		t.Fatal("invalid expense must be rejected")
	}

	items, err := s.ListExpenses(ctx, "u1")
	if err != nil || len(items) != 1 {
		t.Fatalf("list: items=%d err=%v", len(items), err)
	}
	if other, _ := s.ListExpenses(ctx, "u2"); len(other) != 0 {
		t.Fatal("expenses leaked across users")
	}

	if err := s.DeleteExpense(ctx, "u1", saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteExpense(ctx, "u1", saved.ID); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeflow/internal/backend"
	"financeflow/internal/backend/memory"
	"financeflow/internal/core"
)

func newStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	mem := memory.New(time.Hour)
	s := New(mem, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, mem
}

func register(t *testing.T, s *Store, email string) {
	t.Helper()
	if err := s.SignUp(context.Background(), email, "secret123", "Test User", "US"); err != nil {
		t.Fatalf("sign up: %v", err)
	}
}

func TestStartResolvesLoading(t *testing.T) {
	s, _ := newStore(t)
	if s.Loading() {
		t.Fatal("loading must resolve after the initial probe")
	}
	if s.Identity() != nil {
		t.Fatal("fresh store must be signed out")
	}
}

func TestStartTwice(t *testing.T) {
	s, _ := newStore(t)
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSignUpDoesNotEstablishSession(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, "a@example.com")
	if s.Identity() != nil {
		t.Fatal("sign up must not sign the user in")
	}
}

func TestSignUpInvalidCountry(t *testing.T) {
	s, _ := newStore(t)
	err := s.SignUp(context.Background(), "a@example.com", "secret123", "Test User", "XX")
	if !errors.Is(err, core.ErrInvalidCountry) {
		t.Fatalf("expected ErrInvalidCountry, got %v", err)
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, "a@example.com")
	err := s.SignUp(context.Background(), "a@example.com", "other456", "Someone Else", "DE")
	var regErr *backend.RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("expected RegistrationError, got %v", err)
	}
}

func TestSignInAndOut(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, "a@example.com")

	if err := s.SignIn(context.Background(), "a@example.com", "secret123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	id := s.Identity()
	if id == nil || id.Email != "a@example.com" {
		t.Fatalf("expected identity for a@example.com, got %+v", id)
	}
	if s.Session() == nil {
		t.Fatal("expected an active session")
	}

	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if s.Identity() != nil || s.Session() != nil {
		t.Fatal("state must clear after a confirmed sign out")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, "a@example.com")
	err := s.SignIn(context.Background(), "a@example.com", "wrong")
	if !errors.Is(err, backend.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if s.Identity() != nil {
		t.Fatal("failed sign in must not establish a session")
	}
}

func TestSignOutWithoutSession(t *testing.T) {
	s, _ := newStore(t)
	if err := s.SignOut(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

// failingAuth wraps the memory backend and fails session invalidation.
type failingAuth struct {
	backend.Authenticator
}

func (f *failingAuth) InvalidateSession(ctx context.Context, token string) error {
	return errors.New("network down")
}

func TestSignOutFailureKeepsSession(t *testing.T) {
	mem := memory.New(time.Hour)
	s := New(&failingAuth{Authenticator: mem}, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()
	register(t, s, "a@example.com")
	if err := s.SignIn(context.Background(), "a@example.com", "secret123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	err := s.SignOut(context.Background())
	if !errors.Is(err, ErrSignOut) {
		t.Fatalf("expected ErrSignOut, got %v", err)
	}
	if s.Identity() == nil || s.Session() == nil {
		t.Fatal("failed sign out must keep the local session")
	}
}

func TestBackendEventsUpdateState(t *testing.T) {
	s, mem := newStore(t)
	register(t, s, "a@example.com")
	if err := s.SignIn(context.Background(), "a@example.com", "secret123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	// External expiry pushes a nil session.
	mem.Emit(backend.SessionEvent{Type: backend.SessionExpired})
	if s.Identity() != nil {
		t.Fatal("expiry event must clear the identity")
	}

	// A refresh event with a new token re-establishes the session.
	sess := &core.Session{Token: "fresh", UserID: "u1", Email: "a@example.com", ExpiresAt: time.Now().Add(time.Hour)}
	mem.Emit(backend.SessionEvent{Type: backend.SessionRefreshed, Session: sess})
	got := s.Session()
	if got == nil || got.Token != "fresh" {
		t.Fatalf("refresh event must install the new session, got %+v", got)
	}
}

func TestSubscribeNotifiesOnIdentityChange(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, "a@example.com")

	var seen []*core.Identity
	unsub := s.Subscribe(func(id *core.Identity) {
		seen = append(seen, id)
	})
	defer unsub()

	if err := s.SignIn(context.Background(), "a@example.com", "secret123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if seen[0] == nil || seen[0].Email != "a@example.com" {
		t.Fatalf("first notification should carry the identity, got %+v", seen[0])
	}
	if seen[1] != nil {
		t.Fatalf("second notification should be nil on sign out, got %+v", seen[1])
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s, _ := newStore(t)
	register(t, s, "a@example.com")

	calls := 0
	unsub := s.Subscribe(func(*core.Identity) { calls++ })
	unsub()

	if err := s.SignIn(context.Background(), "a@example.com", "secret123"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if calls != 0 {
		t.Fatalf("unsubscribed callback ran %d times", calls)
	}
}

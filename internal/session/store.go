// Package session holds the process-wide authenticated identity and the
// raw session, and exposes the sign-up/sign-in/sign-out operations. It is
// the root dependency of the profile cache and the goal store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"financeflow/internal/backend"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
)

var (
	// ErrSignOut wraps a failed backend invalidation. Local state is kept;
	// the user retries by clicking again.
	ErrSignOut = errors.New("sign out failed")

	ErrAlreadyStarted = errors.New("session store already started")
	ErrNoSession      = errors.New("no active session")
)

// Store keeps at most one active session per process. Consumers observe
// identity changes through Subscribe; exactly one backend subscription
// exists for the whole process, created by Start.
type Store struct {
	auth backend.Authenticator
	log  *applog.Logger

	mu       sync.Mutex
	session  *core.Session
	identity *core.Identity
	loading  bool
	started  bool
	unwatch  func()

	subs    map[int]func(*core.Identity)
	nextSub int
}

func New(auth backend.Authenticator, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Store{
		auth:    auth,
		log:     logger.WithComponent(applog.ComponentSession),
		loading: true,
		subs:    make(map[int]func(*core.Identity)),
	}
}

// Start subscribes once to the backend's session change notifications and
// probes the initial session. Calling it twice is a bug: every consumer
// mount must observe the store, never re-subscribe to the backend.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.unwatch = s.auth.WatchSessions(s.applyEvent)

	sess, err := s.auth.CurrentSession(ctx)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		s.setSession(nil)
	case err != nil:
		// Probe failure degrades to the signed-out state; the watcher will
		// deliver the session if one materializes.
		s.log.WarnContext(ctx, "Initial session probe failed", applog.FieldError, err)
		s.setSession(nil)
	default:
		s.setSession(sess)
	}
	return nil
}

// Stop releases the backend subscription.
func (s *Store) Stop() {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.started = false
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// SignUp resolves the currency for the country, then delegates registration
// with the profile metadata attached. It does not establish a session: the
// backend may require email verification first.
func (s *Store) SignUp(ctx context.Context, email, password, fullName, country string) error {
	currency, err := core.ResolveCurrency(country)
	if err != nil {
		return err
	}
	err = s.auth.Register(ctx, backend.Registration{
		Email:    email,
		Password: password,
		FullName: fullName,
		Country:  country,
		Currency: currency,
	})
	if err != nil {
		var regErr *backend.RegistrationError
		if errors.As(err, &regErr) {
			return err
		}
		return &backend.RegistrationError{Message: err.Error()}
	}
	s.log.InfoContext(ctx, "Sign-up completed", applog.FieldEmail, email, applog.FieldCountry, country)
	return nil
}

// SignIn delegates the credential check and, on success, establishes the
// session and notifies subscribers.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	sess, err := s.auth.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			return err
		}
		return fmt.Errorf("authenticate: %w", err)
	}
	s.setSession(sess)
	s.log.InfoContext(ctx, "Signed in", applog.FieldUserID, sess.UserID)
	return nil
}

// SignOut invalidates the session with the backend. When the backend call
// fails the local state is deliberately kept: the user stays signed in and
// retries. Only a confirmed invalidation clears the state.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	if err := s.auth.InvalidateSession(ctx, sess.Token); err != nil {
		s.log.ErrorContext(ctx, "Sign-out failed, keeping local session",
			applog.FieldUserID, sess.UserID, applog.FieldError, err)
		return fmt.Errorf("%w: %v", ErrSignOut, err)
	}
	s.setSession(nil)
	s.log.InfoContext(ctx, "Signed out", applog.FieldUserID, sess.UserID)
	return nil
}

// Identity returns the current identity, nil when signed out.
func (s *Store) Identity() *core.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Session returns the raw session, nil when signed out.
func (s *Store) Session() *core.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

// Loading reports whether the initial session probe is still pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers an identity change observer and returns its
// unsubscribe handle. The callback receives nil on sign-out.
func (s *Store) Subscribe(fn func(*core.Identity)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// applyEvent handles backend push notifications: token refresh, expiry and
// external sign-out all funnel through here.
func (s *Store) applyEvent(ev backend.SessionEvent) {
	s.log.Debug("Session event", applog.FieldEventType, string(ev.Type))
	s.setSession(ev.Session)
}

// setSession is the single writer of the shared session/identity state.
func (s *Store) setSession(sess *core.Session) {
	s.mu.Lock()
	prevID := ""
	if s.identity != nil {
		prevID = s.identity.ID
	}
	if sess == nil {
		s.session = nil
		s.identity = nil
	} else {
		cp := *sess
		s.session = &cp
		id := cp.Identity()
		s.identity = &id
	}
	s.loading = false

	changed := prevID != currentID(s.identity)
	var notify []func(*core.Identity)
	var arg *core.Identity
	if changed {
		notify = make([]func(*core.Identity), 0, len(s.subs))
		for _, fn := range s.subs {
			notify = append(notify, fn)
		}
		if s.identity != nil {
			id := *s.identity
			arg = &id
		}
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn(arg)
	}
}

func currentID(id *core.Identity) string {
	if id == nil {
		return ""
	}
	return id.ID
}

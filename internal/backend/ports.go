// Package backend defines the capability contract of the hosted service the
// app delegates persistence and authentication to, plus a factory for the
// concrete implementations (in-memory and SQLite).
package backend

import (
	"context"
	"errors"

	"financeflow/internal/core"
)

var (
	// ErrNotFound signals an absent row. Callers treat it as an expected
	// state (brand-new users), never as a failure.
	ErrNotFound = errors.New("not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
)

// RegistrationError carries the service's rejection message, e.g. a
// duplicate email.
type RegistrationError struct {
	Message string
}

func (e *RegistrationError) Error() string {
	return "registration failed: " + e.Message
}

// Registration bundles the credentials and profile metadata attached at
// sign-up. The service creates the Profile row from the metadata.
type Registration struct {
	Email    string
	Password string
	FullName string
	Country  string
	Currency core.Currency
}

// SessionEventType labels a push notification about the session lifecycle.
type SessionEventType string

const (
	SessionSignedIn  SessionEventType = "signed_in"
	SessionRefreshed SessionEventType = "refreshed"
	SessionSignedOut SessionEventType = "signed_out"
	SessionExpired   SessionEventType = "expired"
)

// SessionEvent is pushed by the service on token refresh, expiry and
// external sign-out. Session is nil when no session remains active.
type SessionEvent struct {
	Type    SessionEventType
	Session *core.Session
}

// Ports consumed by the state layer.
type (
	Authenticator interface {
		// Register creates the account and its profile row. It does not
		// establish a session.
		Register(ctx context.Context, reg Registration) error

		// Authenticate checks credentials and returns a fresh session, or
		// ErrInvalidCredentials.
		Authenticate(ctx context.Context, email, password string) (*core.Session, error)

		// InvalidateSession revokes the session identified by token.
		InvalidateSession(ctx context.Context, token string) error

		// CurrentSession returns the active session, or ErrNotFound when
		// none exists. Used for the initial probe at process start.
		CurrentSession(ctx context.Context) (*core.Session, error)

		// WatchSessions registers a callback for session change events and
		// returns its unsubscribe handle.
		WatchSessions(fn func(SessionEvent)) (unsubscribe func())
	}

	ProfileReader interface {
		// GetProfile returns the profile row for a user, or ErrNotFound.
		GetProfile(ctx context.Context, userID string) (*core.Profile, error)
	}

	GoalsRepository interface {
		// GetGoals returns the single goals row for a user, or ErrNotFound.
		GetGoals(ctx context.Context, userID string) (core.SpendingGoals, error)

		// UpsertGoals replaces the goals row wholesale.
		UpsertGoals(ctx context.Context, userID string, g core.SpendingGoals) error
	}

	ExpenseRepository interface {
		ListExpenses(ctx context.Context, userID string) ([]core.Expense, error)

		// InsertExpense stores the expense and returns it with the id the
		// service minted.
		InsertExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error)

		DeleteExpense(ctx context.Context, userID, id string) error
	}
)

// Backend is the unified contract a concrete implementation satisfies.
type Backend interface {
	Authenticator
	ProfileReader
	GoalsRepository
	ExpenseRepository
}

// Package storage is the SQLite implementation of the backend contract,
// standing in for the hosted service in self-contained deployments.
package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"financeflow/internal/backend"
	"financeflow/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db         *sql.DB
	sessionTTL time.Duration

	mu          sync.Mutex
	watchers    map[int]func(backend.SessionEvent)
	nextWatcher int
	timers      map[string]*time.Timer
}

func NewSQLiteRepository(dbPath string, sessionTTL time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}

	return &SQLiteRepository{
		db:         db,
		sessionTTL: sessionTTL,
		watchers:   make(map[int]func(backend.SessionEvent)),
		timers:     make(map[string]*time.Timer),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	for token, t := range r.timers {
		t.Stop()
		delete(r.timers, token)
	}
	r.mu.Unlock()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Register implements backend.Authenticator.
func (r *SQLiteRepository) Register(ctx context.Context, reg backend.Registration) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback()

	id := newID(8)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)`,
		id, reg.Email, string(hash))
	if err != nil {
		if isUniqueViolation(err) {
			return &backend.RegistrationError{Message: "email already registered"}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, country, currency_code, currency_symbol)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, reg.Email, reg.FullName, reg.Country, reg.Currency.Code, reg.Currency.Symbol)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", id, "country", reg.Country)
	return nil
}

// Authenticate implements backend.Authenticator.
func (r *SQLiteRepository) Authenticate(ctx context.Context, email, password string) (*core.Session, error) {
	var (
		id   string
		hash string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, backend.ErrInvalidCredentials
	}

	sess := core.Session{
		Token:     newID(16),
		UserID:    id,
		Email:     email,
		ExpiresAt: time.Now().Add(r.sessionTTL),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, email, expires_at) VALUES (?, ?, ?, ?)`,
		sess.Token, sess.UserID, sess.Email, sess.ExpiresAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	r.scheduleExpiry(sess)
	ev := sess
	r.emit(backend.SessionEvent{Type: backend.SessionSignedIn, Session: &ev})
	return &sess, nil
}

// InvalidateSession implements backend.Authenticator.
func (r *SQLiteRepository) InvalidateSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	r.mu.Lock()
	if t, ok := r.timers[token]; ok {
		t.Stop()
		delete(r.timers, token)
	}
	r.mu.Unlock()
	r.emit(backend.SessionEvent{Type: backend.SessionSignedOut})
	return nil
}

// CurrentSession implements backend.Authenticator.
func (r *SQLiteRepository) CurrentSession(ctx context.Context) (*core.Session, error) {
	var sess core.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, email, expires_at FROM sessions
		 WHERE expires_at > ? ORDER BY created_at DESC LIMIT 1`,
		time.Now().UTC()).Scan(&sess.Token, &sess.UserID, &sess.Email, &sess.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query current session: %w", err)
	}
	return &sess, nil
}

// WatchSessions implements backend.Authenticator.
func (r *SQLiteRepository) WatchSessions(fn func(backend.SessionEvent)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}

// GetProfile implements backend.ProfileReader.
func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	var p core.Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, country, currency_code, currency_symbol
		 FROM profiles WHERE id = ?`, userID).
		Scan(&p.ID, &p.Email, &p.FullName, &p.Country, &p.CurrencyCode, &p.CurrencySymbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

// GetGoals implements backend.GoalsRepository.
func (r *SQLiteRepository) GetGoals(ctx context.Context, userID string) (core.SpendingGoals, error) {
	var monthly, yearly string
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_amount, yearly_amount FROM spending_goals WHERE user_id = ?`, userID).
		Scan(&monthly, &yearly)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SpendingGoals{}, backend.ErrNotFound
	}
	if err != nil {
		return core.SpendingGoals{}, fmt.Errorf("query goals: %w", err)
	}

	g := core.SpendingGoals{}
	if g.Monthly.Cents, err = core.ParseNonNegativeCents(monthly); err != nil {
		return core.SpendingGoals{}, fmt.Errorf("parse monthly goal %q: %w", monthly, err)
	}
	if g.Yearly.Cents, err = core.ParseNonNegativeCents(yearly); err != nil {
		return core.SpendingGoals{}, fmt.Errorf("parse yearly goal %q: %w", yearly, err)
	}
	return g, nil
}

// UpsertGoals implements backend.GoalsRepository. The row is replaced
// wholesale.
func (r *SQLiteRepository) UpsertGoals(ctx context.Context, userID string, g core.SpendingGoals) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO spending_goals (user_id, monthly_amount, yearly_amount, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		   monthly_amount = excluded.monthly_amount,
		   yearly_amount = excluded.yearly_amount,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, g.Monthly.Decimal(), g.Yearly.Decimal())
	if err != nil {
		return fmt.Errorf("upsert goals: %w", err)
	}
	return nil
}

// ListExpenses implements backend.ExpenseRepository. Newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, amount, description, category, spent_on FROM expenses
		 WHERE user_id = ? ORDER BY spent_on DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			id      int64
			amount  string
			e       core.Expense
			spentOn time.Time
		)
		if err := rows.Scan(&id, &amount, &e.Description, &e.Category, &spentOn); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.ID = strconv.FormatInt(id, 10)
		e.Date = core.Date{Time: spentOn}
		if e.Amount.Cents, err = core.ParseDecimalToCents(amount); err != nil {
			return nil, fmt.Errorf("parse amount %q for expense %s: %w", amount, e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

// InsertExpense implements backend.ExpenseRepository.
func (r *SQLiteRepository) InsertExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (user_id, amount, description, category, spent_on)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, e.Amount.Decimal(), e.Description, e.Category, e.Date.Time.UTC())
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense id: %w", err)
	}
	e.ID = strconv.FormatInt(id, 10)

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"user_id", userID,
		"amount", e.Amount.Decimal(),
		"category", e.Category)
	return e, nil
}

// DeleteExpense implements backend.ExpenseRepository.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense result: %w", err)
	}
	if n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// scheduleExpiry arms a local timer that emits the expiry event the hosted
// service would push.
func (r *SQLiteRepository) scheduleExpiry(sess core.Session) {
	d := time.Until(sess.ExpiresAt)
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timers[sess.Token] = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, sess.Token)
		r.mu.Unlock()
		if _, err := r.db.Exec(`DELETE FROM sessions WHERE token = ?`, sess.Token); err != nil {
			slog.Warn("Failed to delete expired session", "error", err)
		}
		r.emit(backend.SessionEvent{Type: backend.SessionExpired})
	})
}

func (r *SQLiteRepository) emit(ev backend.SessionEvent) {
	r.mu.Lock()
	watchers := make([]func(backend.SessionEvent), 0, len(r.watchers))
	for _, fn := range r.watchers {
		watchers = append(watchers, fn)
	}
	r.mu.Unlock()
	for _, fn := range watchers {
		fn(ev)
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func newID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}

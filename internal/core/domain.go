package core

import (
	"errors"
	"strings"
	"time"
)

// Fixed expense categories offered by the app. Anything else is rejected;
// uncategorizable spending goes under "Other".
var Categories = []string{
	"Food & Dining",
	"Transportation",
	"Shopping",
	"Entertainment",
	"Health & Fitness",
	"Bills & Utilities",
	"Travel",
	"Education",
	"Other",
}

type (
	// Identity is the authenticated user's stable id/email pair. Created by
	// the backend at registration, read-only here.
	Identity struct {
		ID    string
		Email string
	}

	// Session is the ephemeral credential bound to one Identity. At most one
	// session is active per process.
	Session struct {
		Token     string
		UserID    string
		Email     string
		ExpiresAt time.Time
	}

	// Profile is the registration metadata the backend keeps per user.
	// Never mutated by this layer.
	Profile struct {
		ID             string
		Email          string
		FullName       string
		Country        string
		CurrencyCode   string
		CurrencySymbol string
	}

	// SpendingGoals holds the monthly/yearly target amounts. Zero means
	// "no goal set" for that period.
	SpendingGoals struct {
		Monthly Money
		Yearly  Money
	}

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Expense struct {
		ID          string
		Date        Date
		Description string
		Amount      Money
		Category    string
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDate        = errors.New("invalid date")
	ErrYearlyBelowMonthly = errors.New("yearly goal cannot be below monthly goal")
)

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsValidCategory reports whether name is one of the fixed categories.
func IsValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if !IsValidCategory(e.Category) {
		return ErrInvalidCategory
	}
	return nil
}

// Validate enforces the cross-period rule: when both goals are non-zero the
// yearly goal must be at least the monthly one. A zero value means "no goal"
// and skips the check.
func (g SpendingGoals) Validate() error {
	if g.Monthly.Cents < 0 || g.Yearly.Cents < 0 {
		return ErrInvalidAmount
	}
	if g.Monthly.Cents > 0 && g.Yearly.Cents > 0 && g.Yearly.Cents < g.Monthly.Cents {
		return ErrYearlyBelowMonthly
	}
	return nil
}

// HasGoals reports whether at least one goal is set.
func (g SpendingGoals) HasGoals() bool {
	return g.Monthly.Cents > 0 || g.Yearly.Cents > 0
}

// Expired reports whether the session is past its expiry at the given time.
// A session without an expiry never expires locally.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Identity returns the identity the session is bound to.
func (s Session) Identity() Identity {
	return Identity{ID: s.UserID, Email: s.Email}
}

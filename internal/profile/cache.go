// Package profile derives the user profile from the current identity and
// caches it process-wide, so simultaneous consumers share one backend
// fetch instead of issuing duplicates.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"financeflow/internal/backend"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/session"
)

// Cache holds at most one profile: the one belonging to the currently
// active identity. Concurrent fetches for the same user are collapsed into
// a single backend call; the in-flight marker clears when the call
// settles, success or failure. Failures are never cached.
type Cache struct {
	reader backend.ProfileReader
	log    *applog.Logger
	group  singleflight.Group

	mu         sync.Mutex
	activeUser string
	current    *core.Profile
	loading    bool

	unsubscribe func()
}

func NewCache(reader backend.ProfileReader, logger *applog.Logger) *Cache {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Cache{
		reader: reader,
		log:    logger.WithComponent(applog.ComponentProfile),
	}
}

// Bind attaches the cache to the session store. Identity changes
// invalidate the cache before any new fetch begins, so a previous user's
// profile can never be served under a new identity.
func (c *Cache) Bind(sessions *session.Store) error {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.mu.Unlock()
		return errors.New("profile cache already bound")
	}
	c.mu.Unlock()

	unsub := sessions.Subscribe(c.onIdentityChange)
	c.mu.Lock()
	c.unsubscribe = unsub
	c.mu.Unlock()

	if id := sessions.Identity(); id != nil {
		c.onIdentityChange(id)
	}
	return nil
}

// Close releases the session subscription.
func (c *Cache) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Current returns the cached profile (nil when absent) and whether a fetch
// is still in flight for the active identity.
func (c *Cache) Current() (*core.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, c.loading
	}
	p := *c.current
	return &p, c.loading
}

// GetOrFetch serves the cached profile synchronously when it belongs to
// userID, otherwise fetches it. N concurrent callers for the same uncached
// user produce exactly one backend call. A missing row is an expected
// state for brand-new users: (nil, nil).
func (c *Cache) GetOrFetch(ctx context.Context, userID string) (*core.Profile, error) {
	c.mu.Lock()
	if c.current != nil && c.current.ID == userID {
		p := *c.current
		c.mu.Unlock()
		return &p, nil
	}
	c.mu.Unlock()
	return c.fetch(ctx, userID)
}

// Refetch invalidates the cache and the in-flight marker for the current
// user and forces a fresh fetch.
func (c *Cache) Refetch(ctx context.Context) (*core.Profile, error) {
	c.mu.Lock()
	userID := c.activeUser
	c.current = nil
	c.mu.Unlock()
	if userID == "" {
		return nil, nil
	}
	c.group.Forget(userID)
	return c.fetch(ctx, userID)
}

// Invalidate drops the cached profile when it belongs to userID.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.ID == userID {
		c.current = nil
	}
	c.group.Forget(userID)
}

func (c *Cache) onIdentityChange(id *core.Identity) {
	c.mu.Lock()
	if id == nil {
		// Sign-out: explicit invalidation.
		c.activeUser = ""
		c.current = nil
		c.loading = false
		c.mu.Unlock()
		return
	}
	if c.activeUser == id.ID && c.current != nil {
		// Same user, cached: nothing to do, served synchronously.
		c.mu.Unlock()
		return
	}
	// Different user: invalidate before the new fetch begins.
	c.activeUser = id.ID
	c.current = nil
	c.loading = true
	userID := id.ID
	c.mu.Unlock()

	go func() {
		if _, err := c.fetch(context.Background(), userID); err != nil {
			c.log.Warn("Background profile fetch failed",
				applog.FieldUserID, userID, applog.FieldError, err)
		}
	}()
}

// fetch is the only writer of the cached profile besides explicit
// invalidation. The result commits only when the fetched user is still the
// active one, so a late response for user A never lands under identity B.
func (c *Cache) fetch(ctx context.Context, userID string) (*core.Profile, error) {
	v, err, _ := c.group.Do(userID, func() (any, error) {
		p, err := c.reader.GetProfile(ctx, userID)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				// Expected for brand-new users.
				return (*core.Profile)(nil), nil
			}
			return nil, fmt.Errorf("fetch profile: %w", err)
		}
		return p, nil
	})

	c.mu.Lock()
	if c.activeUser == userID {
		c.loading = false
	}
	if err != nil {
		// Do not cache failures.
		if c.activeUser == userID {
			c.current = nil
		}
		c.mu.Unlock()
		return nil, err
	}
	p, _ := v.(*core.Profile)
	if p != nil && c.activeUser == userID {
		cp := *p
		c.current = &cp
	}
	c.mu.Unlock()
	return p, nil
}

// Package http exposes the JSON API: auth, profile, goals, expenses and
// dashboard aggregations.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"financeflow/internal/cache"
	"financeflow/internal/core"
	"financeflow/internal/expenses"
	"financeflow/internal/goals"
	applog "financeflow/internal/log"
	"financeflow/internal/profile"
	"financeflow/internal/session"
)

const sessionCookie = "ff_session"

// Options tunes the server independent of its collaborators.
type Options struct {
	DashboardCacheSize int
	DashboardCacheTTL  time.Duration
}

func (o Options) withDefaults() Options {
	if o.DashboardCacheSize <= 0 {
		o.DashboardCacheSize = 100
	}
	if o.DashboardCacheTTL <= 0 {
		o.DashboardCacheTTL = 30 * time.Second
	}
	return o
}

type Server struct {
	http.Server

	sessions *session.Store
	profiles *profile.Cache
	goals    *goals.Store
	expenses *expenses.Service
	log      *applog.Logger

	rateLimiter *rateLimiter

	// Dashboard aggregations are recomputed on demand and cached briefly,
	// keyed by user id. Expense writes invalidate the user's entry.
	summaryCache *cache.LRUCache[dashboardSummary]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, sessions *session.Store, profiles *profile.Cache, goalStore *goals.Store, expenseSvc *expenses.Service, logger *applog.Logger, opts Options) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	opts = opts.withDefaults()

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		sessions:     sessions,
		profiles:     profiles,
		goals:        goalStore,
		expenses:     expenseSvc,
		log:          logger.WithComponent(applog.ComponentHTTP),
		rateLimiter:  newRateLimiter(),
		summaryCache: cache.NewLRUCache[dashboardSummary](opts.DashboardCacheSize, opts.DashboardCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.withMiddleware(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.withMiddleware(s.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", s.withMiddleware(s.requireSession(s.handleLogout)))
	mux.HandleFunc("GET /api/auth/session", s.withMiddleware(s.handleSessionInfo))

	mux.HandleFunc("GET /api/profile", s.withMiddleware(s.requireSession(s.handleGetProfile)))
	mux.HandleFunc("POST /api/profile/refresh", s.withMiddleware(s.requireSession(s.handleRefreshProfile)))

	mux.HandleFunc("GET /api/goals", s.withMiddleware(s.requireSession(s.handleGetGoals)))
	mux.HandleFunc("PUT /api/goals", s.withMiddleware(s.requireSession(s.handlePutGoals)))

	mux.HandleFunc("GET /api/expenses", s.withMiddleware(s.requireSession(s.handleListExpenses)))
	mux.HandleFunc("POST /api/expenses", s.withMiddleware(s.requireSession(s.handleAddExpense)))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withMiddleware(s.requireSession(s.handleDeleteExpense)))

	mux.HandleFunc("GET /api/dashboard", s.withMiddleware(s.requireSession(s.handleDashboard)))
	mux.HandleFunc("GET /api/dashboard/trend", s.withMiddleware(s.requireSession(s.handleTrend)))

	return s
}

// withMiddleware adds security headers, rate limiting and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			s.log.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.log.InfoContext(ctx, "Request completed",
			applog.FieldRequestID, requestID,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rw.statusCode,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP,
			applog.FieldUserAgent, r.UserAgent())
	}
}

// requireSession rejects requests whose cookie does not match the active
// session. The identity is captured here and travels in the request
// context: a concurrent expiry or sign-out may clear the store before the
// handler runs, and handlers must never observe that as nil.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessions.Session()
		if sess == nil {
			respondError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value != sess.Token {
			respondError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		id := sess.Identity()
		ctx := context.WithValue(r.Context(), identityKey{}, &id)
		next(w, r.WithContext(ctx))
	}
}

// identityFrom returns the identity requireSession stored in the context.
func identityFrom(r *http.Request) *core.Identity {
	id, _ := r.Context().Value(identityKey{}).(*core.Identity)
	return id
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

type requestIDKey struct{}

type identityKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Loading() {
		respondError(w, http.StatusServiceUnavailable, "session probe pending")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) invalidateDashboard(userID string) {
	s.summaryCache.Delete(userID)
}

// Shutdown stops the cleanup goroutines and the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

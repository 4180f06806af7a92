package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"financeflow/internal/backend"
	"financeflow/internal/backend/memory"
	"financeflow/internal/expenses"
	"financeflow/internal/goals"
	"financeflow/internal/profile"
	"financeflow/internal/session"
)

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	mem    *memory.Store
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := memory.New(time.Hour)

	sessions := session.New(mem, nil)
	if err := sessions.Start(context.Background()); err != nil {
		t.Fatalf("start sessions: %v", err)
	}
	t.Cleanup(sessions.Stop)

	profiles := profile.NewCache(mem, nil)
	if err := profiles.Bind(sessions); err != nil {
		t.Fatalf("bind profiles: %v", err)
	}
	t.Cleanup(profiles.Close)

	goalStore := goals.NewStore(mem, nil)
	if err := goalStore.Bind(sessions); err != nil {
		t.Fatalf("bind goals: %v", err)
	}
	t.Cleanup(goalStore.Close)

	expenseSvc := expenses.NewService(mem, nil, nil)

	srv := NewServer(":0", sessions, profiles, goalStore, expenseSvc, nil, Options{})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return &testEnv{srv: srv, ts: ts, mem: mem}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, env.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if env.cookie != nil {
		req.AddCookie(env.cookie)
	}
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (env *testEnv) signUpAndIn(t *testing.T) {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":     "a@example.com",
		"password":  "secret123",
		"full_name": "Test User",
		"country":   "US",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "a@example.com",
		"password": "secret123",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			env.cookie = c
		}
	}
	if env.cookie == nil {
		t.Fatal("login did not set the session cookie")
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := env.do(t, http.MethodGet, path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	// Protected routes reject anonymous requests.
	resp := env.do(t, http.MethodGet, "/api/expenses", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous list: status %d", resp.StatusCode)
	}

	env.signUpAndIn(t)

	var info sessionResponse
	decodeBody(t, env.do(t, http.MethodGet, "/api/auth/session", nil), &info)
	if !info.Active || info.Email != "a@example.com" {
		t.Fatalf("session info: %+v", info)
	}

	resp = env.do(t, http.MethodPost, "/api/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/expenses", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("list after logout: status %d", resp.StatusCode)
	}
}

func TestHandlerSurvivesMidRequestExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	// The session expires after the middleware check but before the
	// handler reads the identity. The captured identity keeps the request
	// alive; only the next request sees 401.
	handler := env.srv.requireSession(func(w http.ResponseWriter, r *http.Request) {
		env.mem.Emit(backend.SessionEvent{Type: backend.SessionExpired})
		env.srv.handleDashboard(w, r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.AddCookie(env.cookie)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("in-flight request after expiry: status %d", rec.Code)
	}

	resp := env.do(t, http.MethodGet, "/api/expenses", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("next request after expiry: status %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	resp := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "a@example.com",
		"password": "wrong",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials: status %d", resp.StatusCode)
	}
}

func TestRegisterRejectsUnknownCountry(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "a@example.com",
		"password": "secret123",
		"country":  "XX",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown country: status %d", resp.StatusCode)
	}
}

func TestProfileEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	var got profileResponse
	decodeBody(t, env.do(t, http.MethodGet, "/api/profile", nil), &got)
	if got.Profile == nil || got.Profile.CurrencyCode != "USD" || got.Profile.CurrencySymbol != "$" {
		t.Fatalf("profile: %+v", got.Profile)
	}
}

func TestExpenseCRUDAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	today := time.Now().Format("2006-01-02")

	var created expensePayload
	decodeBody(t, env.do(t, http.MethodPost, "/api/expenses", map[string]string{
		"date":        today,
		"description": "Groceries",
		"amount":      "89.50",
		"category":    "Food & Dining",
	}), &created)
	if created.ID == "" || created.Amount != "89.50" {
		t.Fatalf("created: %+v", created)
	}

	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]string{
		"date":        today,
		"description": "Bus",
		"amount":      "45.00",
		"category":    "Transportation",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("second expense: status %d", resp.StatusCode)
	}

	var list struct {
		Expenses []expensePayload `json:"expenses"`
	}
	decodeBody(t, env.do(t, http.MethodGet, "/api/expenses", nil), &list)
	if len(list.Expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(list.Expenses))
	}

	var dash dashboardSummary
	decodeBody(t, env.do(t, http.MethodGet, "/api/dashboard", nil), &dash)
	if dash.TotalSpent != "134.50" {
		t.Fatalf("total spent: %s", dash.TotalSpent)
	}
	if len(dash.Breakdown) != 2 || dash.Breakdown[0].Percent != 66.5 {
		t.Fatalf("breakdown: %+v", dash.Breakdown)
	}

	// Delete invalidates the cached summary.
	resp = env.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	decodeBody(t, env.do(t, http.MethodGet, "/api/dashboard", nil), &dash)
	if dash.TotalSpent != "45.00" {
		t.Fatalf("total after delete: %s", dash.TotalSpent)
	}

	resp = env.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double delete: status %d", resp.StatusCode)
	}
}

func TestExpenseValidationOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	cases := []map[string]string{
		{"date": "not-a-date", "description": "x", "amount": "1.00", "category": "Other"},
		{"date": "2026-08-20", "description": "x", "amount": "-1.00", "category": "Other"},
		{"date": "2026-08-20", "description": "x", "amount": "1.00", "category": "Gadgets"},
		{"date": "2026-08-20", "description": "  ", "amount": "1.00", "category": "Other"},
	}
	for i, body := range cases {
		resp := env.do(t, http.MethodPost, "/api/expenses", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("case %d: status %d", i, resp.StatusCode)
		}
	}
}

func TestGoalsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	resp := env.do(t, http.MethodPut, "/api/goals", map[string]string{
		"monthly": "100.00",
		"yearly":  "50.00",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("inconsistent goals: status %d", resp.StatusCode)
	}

	var saved goalsPayload
	decodeBody(t, env.do(t, http.MethodPut, "/api/goals", map[string]string{
		"monthly": "100.00",
		"yearly":  "1500.00",
	}), &saved)
	if saved.Monthly != "100.00" || saved.Yearly != "1500.00" || !saved.HasGoals {
		t.Fatalf("saved goals: %+v", saved)
	}

	var got goalsPayload
	decodeBody(t, env.do(t, http.MethodGet, "/api/goals", nil), &got)
	if got.Monthly != "100.00" || got.Yearly != "1500.00" {
		t.Fatalf("get goals: %+v", got)
	}
}

func TestTrendEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.signUpAndIn(t)

	resp := env.do(t, http.MethodPost, "/api/expenses", map[string]string{
		"date":        time.Now().Format("2006-01-02"),
		"description": "Coffee",
		"amount":      "3.50",
		"category":    "Food & Dining",
	})
	resp.Body.Close()

	for mode, points := range map[string]int{"daily": 7, "weekly": 8, "monthly": 12} {
		var trend trendResponse
		decodeBody(t, env.do(t, http.MethodGet, fmt.Sprintf("/api/dashboard/trend?mode=%s", mode), nil), &trend)
		if trend.Mode != mode || len(trend.Points) != points {
			t.Fatalf("%s: mode=%s points=%d", mode, trend.Mode, len(trend.Points))
		}
	}

	resp = env.do(t, http.MethodGet, "/api/dashboard/trend?mode=hourly", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid mode: status %d", resp.StatusCode)
	}
}

package http

import (
	"errors"
	"net/http"

	"financeflow/internal/backend"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
	"financeflow/internal/session"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Country  string `json:"country"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = sanitizeInput(req.Email)
	req.FullName = sanitizeInput(req.FullName)
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}

	err := s.sessions.SignUp(r.Context(), req.Email, req.Password, req.FullName, req.Country)
	if err != nil {
		if errors.Is(err, core.ErrInvalidCountry) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		var regErr *backend.RegistrationError
		if errors.As(err, &regErr) {
			respondError(w, http.StatusUnprocessableEntity, regErr.Message)
			return
		}
		s.log.ErrorContext(r.Context(), "Registration failed", applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	UserID  string `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Loading bool   `json:"loading"`
	Active  bool   `json:"active"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.sessions.SignIn(r.Context(), sanitizeInput(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.log.ErrorContext(r.Context(), "Login failed", applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	sess := s.sessions.Session()
	if sess == nil {
		// Cleared between SignIn and here, e.g. an immediate expiry.
		respondError(w, http.StatusUnauthorized, "session no longer active")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, sessionResponse{
		UserID: sess.UserID,
		Email:  sess.Email,
		Active: true,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.SignOut(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			respondError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		// Backend invalidation failed: the session stays active and the
		// cookie stays valid, the client retries.
		respondError(w, http.StatusBadGateway, "sign out failed, try again")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Loading: s.sessions.Loading()}
	if id := s.sessions.Identity(); id != nil {
		resp.UserID = id.ID
		resp.Email = id.Email
		resp.Active = true
	}
	respondJSON(w, http.StatusOK, resp)
}

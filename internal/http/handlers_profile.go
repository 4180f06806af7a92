package http

import (
	"net/http"

	"financeflow/internal/core"
	applog "financeflow/internal/log"
)

type profileResponse struct {
	Profile *profilePayload `json:"profile"`
	Loading bool            `json:"loading"`
}

type profilePayload struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Country        string `json:"country"`
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
}

func toProfilePayload(p *core.Profile) *profilePayload {
	if p == nil {
		return nil
	}
	return &profilePayload{
		ID:             p.ID,
		Email:          p.Email,
		FullName:       p.FullName,
		Country:        p.Country,
		CurrencyCode:   p.CurrencyCode,
		CurrencySymbol: p.CurrencySymbol,
	}
}

// handleGetProfile serves the cached profile when available; a new user
// without a profile row gets a null profile, not an error.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	p, err := s.profiles.GetOrFetch(r.Context(), id.ID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Profile fetch failed",
			applog.FieldUserID, id.ID, applog.FieldError, err)
		_, loading := s.profiles.Current()
		respondJSON(w, http.StatusOK, profileResponse{Profile: nil, Loading: loading})
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{Profile: toProfilePayload(p)})
}

func (s *Server) handleRefreshProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Refetch(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "Profile refetch failed", applog.FieldError, err)
		respondJSON(w, http.StatusOK, profileResponse{Profile: nil})
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{Profile: toProfilePayload(p)})
}

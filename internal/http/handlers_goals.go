package http

import (
	"errors"
	"net/http"

	"financeflow/internal/core"
	applog "financeflow/internal/log"
)

type goalsPayload struct {
	Monthly  string `json:"monthly"`
	Yearly   string `json:"yearly"`
	HasGoals bool   `json:"has_goals"`
	Loading  bool   `json:"loading,omitempty"`
}

func (s *Server) handleGetGoals(w http.ResponseWriter, r *http.Request) {
	g, loading := s.goals.Goals()
	respondJSON(w, http.StatusOK, goalsPayload{
		Monthly:  g.Monthly.Decimal(),
		Yearly:   g.Yearly.Decimal(),
		HasGoals: g.HasGoals(),
		Loading:  loading,
	})
}

type putGoalsRequest struct {
	Monthly string `json:"monthly"`
	Yearly  string `json:"yearly"`
}

func (s *Server) handlePutGoals(w http.ResponseWriter, r *http.Request) {
	var req putGoalsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	monthly, err := core.ParseNonNegativeCents(req.Monthly)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid monthly goal")
		return
	}
	yearly, err := core.ParseNonNegativeCents(req.Yearly)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid yearly goal")
		return
	}

	id := identityFrom(r)
	g := core.SpendingGoals{
		Monthly: core.Money{Cents: monthly},
		Yearly:  core.Money{Cents: yearly},
	}
	if err := s.goals.SetGoals(r.Context(), id.ID, g); err != nil {
		if errors.Is(err, core.ErrYearlyBelowMonthly) || errors.Is(err, core.ErrInvalidAmount) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.ErrorContext(r.Context(), "Saving goals failed",
			applog.FieldUserID, id.ID, applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "saving goals failed")
		return
	}

	s.invalidateDashboard(id.ID)
	respondJSON(w, http.StatusOK, goalsPayload{
		Monthly:  g.Monthly.Decimal(),
		Yearly:   g.Yearly.Decimal(),
		HasGoals: g.HasGoals(),
	})
}

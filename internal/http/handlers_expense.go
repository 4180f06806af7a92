package http

import (
	"errors"
	"net/http"

	"financeflow/internal/backend"
	"financeflow/internal/core"
	applog "financeflow/internal/log"
)

type expensePayload struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

func toExpensePayload(e core.Expense) expensePayload {
	return expensePayload{
		ID:          e.ID,
		Date:        e.Date.Format("2006-01-02"),
		Description: e.Description,
		Amount:      e.Amount.Decimal(),
		Category:    e.Category,
	}
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)
	items, err := s.expenses.List(r.Context(), id.ID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Listing expenses failed",
			applog.FieldUserID, id.ID, applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "listing expenses failed")
		return
	}

	payload := make([]expensePayload, 0, len(items))
	for _, e := range items {
		payload = append(payload, toExpensePayload(e))
	}
	respondJSON(w, http.StatusOK, map[string]any{"expenses": payload})
}

type addExpenseRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	id := identityFrom(r)
	e := core.Expense{
		Date:        date,
		Description: sanitizeInput(req.Description),
		Amount:      core.Money{Cents: cents},
		Category:    req.Category,
	}
	saved, err := s.expenses.Add(r.Context(), id.ID, e)
	if err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.log.ErrorContext(r.Context(), "Adding expense failed",
			applog.FieldUserID, id.ID, applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "adding expense failed")
		return
	}

	s.invalidateDashboard(id.ID)
	respondJSON(w, http.StatusCreated, toExpensePayload(saved))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	expenseID := r.PathValue("id")
	if expenseID == "" {
		respondError(w, http.StatusBadRequest, "missing expense id")
		return
	}

	id := identityFrom(r)
	if err := s.expenses.Delete(r.Context(), id.ID, expenseID); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			respondError(w, http.StatusNotFound, "expense not found")
			return
		}
		s.log.ErrorContext(r.Context(), "Deleting expense failed",
			applog.FieldUserID, id.ID,
			applog.FieldExpenseID, expenseID,
			applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "deleting expense failed")
		return
	}

	s.invalidateDashboard(id.ID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrEmptyDescription) ||
		errors.Is(err, core.ErrInvalidCategory) ||
		errors.Is(err, core.ErrInvalidDate)
}

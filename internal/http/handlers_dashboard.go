package http

import (
	"net/http"
	"time"

	applog "financeflow/internal/log"
	"financeflow/internal/report"
)

type breakdownPayload struct {
	Category string  `json:"category"`
	Amount   string  `json:"amount"`
	Percent  float64 `json:"percent"`
}

type progressPayload struct {
	Spent   string  `json:"spent"`
	Goal    string  `json:"goal"`
	Percent float64 `json:"percent"`
	Status  string  `json:"status"`
}

type dashboardSummary struct {
	TotalSpent   string             `json:"total_spent"`
	MonthlySpent string             `json:"monthly_spent"`
	YearlySpent  string             `json:"yearly_spent"`
	Breakdown    []breakdownPayload `json:"breakdown"`
	HasGoals     bool               `json:"has_goals"`
	Monthly      *progressPayload   `json:"monthly_goal,omitempty"`
	Yearly       *progressPayload   `json:"yearly_goal,omitempty"`
}

// handleDashboard serves the aggregated spending summary, cached briefly
// per user. Expense and goal writes invalidate the entry.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r)

	if summary, found := s.summaryCache.Get(id.ID); found {
		respondJSON(w, http.StatusOK, summary)
		return
	}

	items, err := s.expenses.List(r.Context(), id.ID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Dashboard load failed",
			applog.FieldUserID, id.ID, applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "dashboard load failed")
		return
	}

	now := time.Now()
	g, _ := s.goals.Goals()

	summary := dashboardSummary{
		TotalSpent:   report.Total(items).Decimal(),
		MonthlySpent: report.MonthlySpent(items, now).Decimal(),
		YearlySpent:  report.YearlySpent(items, now).Decimal(),
		HasGoals:     g.HasGoals(),
	}
	for _, share := range report.CategoryBreakdown(items) {
		summary.Breakdown = append(summary.Breakdown, breakdownPayload{
			Category: share.Category,
			Amount:   share.Amount.Decimal(),
			Percent:  share.Percent,
		})
	}
	if g.Monthly.Cents > 0 {
		p := report.Progress(report.MonthlySpent(items, now), g.Monthly)
		summary.Monthly = toProgressPayload(p)
	}
	if g.Yearly.Cents > 0 {
		p := report.Progress(report.YearlySpent(items, now), g.Yearly)
		summary.Yearly = toProgressPayload(p)
	}

	s.summaryCache.Set(id.ID, summary)
	respondJSON(w, http.StatusOK, summary)
}

func toProgressPayload(p report.GoalProgress) *progressPayload {
	return &progressPayload{
		Spent:   p.Spent.Decimal(),
		Goal:    p.Goal.Decimal(),
		Percent: p.Percent,
		Status:  string(p.Status),
	}
}

type trendResponse struct {
	Mode   string         `json:"mode"`
	Points []trendPayload `json:"points"`
}

type trendPayload struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	mode := report.TrendMode(r.URL.Query().Get("mode"))
	switch mode {
	case report.TrendDaily, report.TrendWeekly, report.TrendMonthly:
	case "":
		mode = report.TrendDaily
	default:
		respondError(w, http.StatusUnprocessableEntity, "invalid trend mode")
		return
	}

	id := identityFrom(r)
	items, err := s.expenses.List(r.Context(), id.ID)
	if err != nil {
		s.log.ErrorContext(r.Context(), "Trend load failed",
			applog.FieldUserID, id.ID, applog.FieldError, err)
		respondError(w, http.StatusInternalServerError, "trend load failed")
		return
	}

	points := report.Trend(items, mode, time.Now())
	resp := trendResponse{Mode: string(mode), Points: make([]trendPayload, 0, len(points))}
	for _, p := range points {
		resp.Points = append(resp.Points, trendPayload{
			Label:  p.Label,
			Amount: p.Amount.Decimal(),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

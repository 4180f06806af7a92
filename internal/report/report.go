// Package report computes read-only aggregations over an expense list:
// category breakdowns, spending trends and goal progress. All functions
// are pure; callers pass the reference time explicitly.
package report

import (
	"math"
	"sort"
	"time"

	"financeflow/internal/core"
)

// TrendMode selects the bucketing of a spending trend.
type TrendMode string

const (
	TrendDaily   TrendMode = "daily"
	TrendWeekly  TrendMode = "weekly"
	TrendMonthly TrendMode = "monthly"
)

const (
	dailyBuckets   = 7
	weeklyBuckets  = 8
	monthlyBuckets = 12
)

// GoalStatus classifies spending against a goal.
type GoalStatus string

const (
	StatusOnTrack     GoalStatus = "on_track"
	StatusApproaching GoalStatus = "approaching_limit"
	StatusExceeded    GoalStatus = "exceeded"
)

// CategoryShare is one slice of the category breakdown.
type CategoryShare struct {
	Category string
	Amount   core.Money
	Percent  float64 // share of the total, one decimal place
}

// TrendPoint is one bucket of a spending trend. Buckets with no expenses
// are still present with a zero amount.
type TrendPoint struct {
	Label  string
	Start  time.Time
	Amount core.Money
}

// GoalProgress pairs spending with its goal.
type GoalProgress struct {
	Spent   core.Money
	Goal    core.Money
	Percent float64
	Status  GoalStatus
}

// Total sums all expense amounts.
func Total(items []core.Expense) core.Money {
	var cents int64
	for _, e := range items {
		cents += e.Amount.Cents
	}
	return core.Money{Cents: cents}
}

// MonthlySpent sums expenses in the calendar month containing now.
func MonthlySpent(items []core.Expense, now time.Time) core.Money {
	var cents int64
	for _, e := range items {
		if e.Date.Year() == now.Year() && e.Date.Month() == int(now.Month()) {
			cents += e.Amount.Cents
		}
	}
	return core.Money{Cents: cents}
}

// YearlySpent sums expenses in the calendar year containing now.
func YearlySpent(items []core.Expense, now time.Time) core.Money {
	var cents int64
	for _, e := range items {
		if e.Date.Year() == now.Year() {
			cents += e.Amount.Cents
		}
	}
	return core.Money{Cents: cents}
}

// CategoryBreakdown returns per-category totals sorted by amount
// descending, ties broken by the category's first appearance in the
// expense list. Percentages carry one decimal place. An empty or
// zero-total list yields an empty slice.
func CategoryBreakdown(items []core.Expense) []CategoryShare {
	totals := make(map[string]int64)
	firstSeen := make(map[string]int)
	for _, e := range items {
		if _, seen := totals[e.Category]; !seen {
			firstSeen[e.Category] = len(firstSeen)
		}
		totals[e.Category] += e.Amount.Cents
	}

	var grand int64
	for _, cents := range totals {
		grand += cents
	}
	if grand == 0 {
		return nil
	}

	shares := make([]CategoryShare, 0, len(totals))
	for category, cents := range totals {
		pct := float64(cents) / float64(grand) * 100
		shares = append(shares, CategoryShare{
			Category: category,
			Amount:   core.Money{Cents: cents},
			Percent:  math.Round(pct*10) / 10,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Amount.Cents != shares[j].Amount.Cents {
			return shares[i].Amount.Cents > shares[j].Amount.Cents
		}
		return firstSeen[shares[i].Category] < firstSeen[shares[j].Category]
	})
	return shares
}

// Trend buckets expenses into a fixed window ending at now: the last 7
// days, the last 8 weeks (weeks start on Sunday) or the last 12 calendar
// months. Every bucket appears in the result, oldest first.
func Trend(items []core.Expense, mode TrendMode, now time.Time) []TrendPoint {
	switch mode {
	case TrendWeekly:
		return weeklyTrend(items, now)
	case TrendMonthly:
		return monthlyTrend(items, now)
	default:
		return dailyTrend(items, now)
	}
}

func dailyTrend(items []core.Expense, now time.Time) []TrendPoint {
	today := truncateDay(now)
	points := make([]TrendPoint, 0, dailyBuckets)
	for i := dailyBuckets - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		var cents int64
		for _, e := range items {
			if dayIn(e.Date.Time, day.Location()).Equal(day) {
				cents += e.Amount.Cents
			}
		}
		points = append(points, TrendPoint{
			Label:  day.Format("Jan 2"),
			Start:  day,
			Amount: core.Money{Cents: cents},
		})
	}
	return points
}

func weeklyTrend(items []core.Expense, now time.Time) []TrendPoint {
	thisWeek := startOfWeek(now)
	points := make([]TrendPoint, 0, weeklyBuckets)
	for i := weeklyBuckets - 1; i >= 0; i-- {
		start := thisWeek.AddDate(0, 0, -7*i)
		end := start.AddDate(0, 0, 7)
		var cents int64
		for _, e := range items {
			d := dayIn(e.Date.Time, start.Location())
			if !d.Before(start) && d.Before(end) {
				cents += e.Amount.Cents
			}
		}
		points = append(points, TrendPoint{
			Label:  start.Format("Jan 2"),
			Start:  start,
			Amount: core.Money{Cents: cents},
		})
	}
	return points
}

func monthlyTrend(items []core.Expense, now time.Time) []TrendPoint {
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	points := make([]TrendPoint, 0, monthlyBuckets)
	for i := monthlyBuckets - 1; i >= 0; i-- {
		start := thisMonth.AddDate(0, -i, 0)
		var cents int64
		for _, e := range items {
			if e.Date.Year() == start.Year() && e.Date.Month() == int(start.Month()) {
				cents += e.Amount.Cents
			}
		}
		points = append(points, TrendPoint{
			Label:  start.Format("Jan 2006"),
			Start:  start,
			Amount: core.Money{Cents: cents},
		})
	}
	return points
}

// Progress compares spending against a goal. A zero goal yields zero
// percent and the on-track status. The 80 and 100 percent boundaries
// belong to the lower band.
func Progress(spent, goal core.Money) GoalProgress {
	p := GoalProgress{Spent: spent, Goal: goal, Status: StatusOnTrack}
	if goal.Cents <= 0 {
		return p
	}
	p.Percent = float64(spent.Cents) / float64(goal.Cents) * 100
	switch {
	case p.Percent <= 80:
		p.Status = StatusOnTrack
	case p.Percent <= 100:
		p.Status = StatusApproaching
	default:
		p.Status = StatusExceeded
	}
	return p
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayIn rebuilds t's calendar date at midnight in loc, so dates stored in
// a different location still land in the right bucket.
func dayIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func startOfWeek(t time.Time) time.Time {
	d := truncateDay(t)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/projection"
)

// MonthSummary compares planned budgets against actual transactions for
// one calendar month. All amounts are integer cents.
type MonthSummary struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	ActualIncome   int64 `json:"actual_income"`
	ActualExpense  int64 `json:"actual_expense"`
	ActualNet      int64 `json:"actual_net"`
	PlannedIncome  int64 `json:"planned_income"`
	PlannedExpense int64 `json:"planned_expense"`
	PlannedNet     int64 `json:"planned_net"`

	ActualByCategory  map[string]int64 `json:"actual_expense_by_category"`
	PlannedByCategory map[string]int64 `json:"planned_expense_by_category"`

	DailyNet map[string]int64 `json:"daily_net"`
}

// handleDashboard renders the monthly planned-vs-actual summary.
// Defaults to the current month.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.currentUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "no session")
		return
	}

	now := time.Now()
	year := queryInt(r, "year", now.Year())
	month := queryInt(r, "month", int(now.Month()))
	if month < 1 || month > 12 {
		month = int(now.Month())
	}

	monthStart, monthEnd := projection.MonthWindow(year, month)
	nextMonth := monthStart.AddDate(0, 1, 0)

	ctx := r.Context()
	categories, err := s.store.ListCategories(ctx, uid)
	if err != nil {
		slog.ErrorContext(ctx, "Dashboard query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	transactions, err := s.store.ListTransactionsRange(ctx, uid, monthStart, nextMonth)
	if err != nil {
		slog.ErrorContext(ctx, "Dashboard query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	budgets, err := s.store.ListBudgets(ctx, uid)
	if err != nil {
		slog.ErrorContext(ctx, "Dashboard query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "dashboard unavailable")
		return
	}

	categoryName := make(map[int64]string, len(categories))
	for _, c := range categories {
		categoryName[c.ID] = c.Name
	}
	nameOf := func(id int64) string {
		if name, ok := categoryName[id]; ok {
			return name
		}
		return fmt.Sprintf("Category %d", id)
	}

	summary := &MonthSummary{
		Year:              year,
		Month:             month,
		ActualByCategory:  make(map[string]int64),
		PlannedByCategory: make(map[string]int64),
		DailyNet:          make(map[string]int64),
	}

	// Fill every day of the month so chart consumers need no gap logic.
	for d := monthStart; !d.After(monthEnd); d = d.AddDate(0, 0, 1) {
		summary.DailyNet[d.Format(core.DateLayout)] = 0
	}

	for _, t := range transactions {
		day := t.Date.Format(core.DateLayout)
		if t.Type == core.Income {
			summary.ActualIncome += t.AmountCents
			summary.DailyNet[day] += t.AmountCents
		} else {
			summary.ActualExpense += t.AmountCents
			summary.ActualByCategory[nameOf(t.CategoryID)] += t.AmountCents
			summary.DailyNet[day] -= t.AmountCents
		}
	}
	summary.ActualNet = summary.ActualIncome - summary.ActualExpense

	for _, b := range budgets {
		amount := projection.PlannedContribution(b, monthStart, monthEnd)
		if amount == 0 {
			continue
		}
		if b.Type == core.Income {
			summary.PlannedIncome += amount
		} else {
			summary.PlannedExpense += amount
			summary.PlannedByCategory[nameOf(b.CategoryID)] += amount
		}
	}
	summary.PlannedNet = summary.PlannedIncome - summary.PlannedExpense

	writeJSON(w, http.StatusOK, summary)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return defaultValue
}

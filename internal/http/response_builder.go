package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"budgetsmart/internal/aggregate"
	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
	"budgetsmart/internal/sequence"
)

const (
	SequenceHeader   = "X-Aggregation-Seq"
	SupersededHeader = "X-Aggregation-Superseded"

	// fetchRetryAfter is advertised when a backend read failed.
	fetchRetryAfter = 5
)

// Response bodies. Amounts are decimal currency units.
type (
	categoryJSON struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Icon   string `json:"icon"`
		Color  int    `json:"color"`
		UserID string `json:"userId"`
	}

	budgetJSON struct {
		ID         string  `json:"id"`
		CategoryID string  `json:"categoryId"`
		Amount     float64 `json:"amount"`
		Month      int     `json:"month"`
		Year       int     `json:"year"`
	}

	transactionJSON struct {
		ID          string        `json:"id"`
		Amount      float64       `json:"amount"`
		Description string        `json:"description"`
		CategoryID  string        `json:"categoryId"`
		Date        time.Time     `json:"date"`
		Type        string        `json:"type"`
		Category    *categoryJSON `json:"category,omitempty"`
	}

	budgetStatusJSON struct {
		Budget       budgetJSON   `json:"budget"`
		Category     categoryJSON `json:"category"`
		Spent        float64      `json:"spent"`
		Remaining    float64      `json:"remaining"`
		Percentage   float64      `json:"percentage"`
		IsOverBudget bool         `json:"isOverBudget"`
	}

	budgetOverviewJSON struct {
		Month          int                `json:"month"`
		Year           int                `json:"year"`
		Statuses       []budgetStatusJSON `json:"statuses"`
		TotalBudget    float64            `json:"totalBudget"`
		TotalSpent     float64            `json:"totalSpent"`
		TotalRemaining float64            `json:"totalRemaining"`
		Percentage     float64            `json:"percentage"`
		Orphaned       []budgetJSON       `json:"orphaned"`
	}

	financialSummaryJSON struct {
		Month                int     `json:"month"`
		Year                 int     `json:"year"`
		TotalIncome          float64 `json:"totalIncome"`
		TotalExpenses        float64 `json:"totalExpenses"`
		Balance              float64 `json:"balance"`
		MonthlyBudget        float64 `json:"monthlyBudget"`
		BudgetUsedPercentage float64 `json:"budgetUsedPercentage"`
	}

	summaryJSON struct {
		Summary            financialSummaryJSON `json:"summary"`
		RecentTransactions []transactionJSON    `json:"recentTransactions"`
	}

	monthlyJSON struct {
		Year      int     `json:"year"`
		Month     int     `json:"month"`
		MonthName string  `json:"monthName"`
		Amount    float64 `json:"amount"`
	}

	categoryExpenseJSON struct {
		CategoryID    string  `json:"categoryId"`
		CategoryName  string  `json:"categoryName"`
		CategoryColor int     `json:"categoryColor"`
		Amount        float64 `json:"amount"`
		Percentage    float64 `json:"percentage"`
	}

	orphanedAmountJSON struct {
		CategoryID string  `json:"categoryId"`
		Amount     float64 `json:"amount"`
	}

	reportJSON struct {
		Type          string                `json:"type"`
		Start         time.Time             `json:"start"`
		End           time.Time             `json:"end"`
		Monthly       []monthlyJSON         `json:"monthly"`
		Categories    []categoryExpenseJSON `json:"categories"`
		TopCategories []categoryExpenseJSON `json:"topCategories"`
		Orphaned      []orphanedAmountJSON  `json:"orphaned"`
	}

	userJSON struct {
		ID              string    `json:"id"`
		DefaultCurrency string    `json:"defaultCurrency"`
		CreatedAt       time.Time `json:"createdAt"`
	}

	errorJSON struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields,omitempty"`
	}
)

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, UserID: c.UserID}
}

func toBudgetJSON(b core.Budget) budgetJSON {
	return budgetJSON{ID: b.ID, CategoryID: b.CategoryID, Amount: b.Amount.Units(), Month: b.Month, Year: b.Year}
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Amount:      t.Amount.Units(),
		Description: t.Description,
		CategoryID:  t.CategoryID,
		Date:        t.Date,
		Type:        string(t.Type),
	}
}

func toJoinedTransactionsJSON(rows []core.TransactionWithCategory) []transactionJSON {
	out := make([]transactionJSON, 0, len(rows))
	for _, row := range rows {
		t := toTransactionJSON(row.Transaction)
		c := toCategoryJSON(row.Category)
		t.Category = &c
		out = append(out, t)
	}
	return out
}

func toBudgetOverviewJSON(o core.BudgetOverview) budgetOverviewJSON {
	out := budgetOverviewJSON{
		Month:          o.Period.Month,
		Year:           o.Period.Year,
		Statuses:       make([]budgetStatusJSON, 0, len(o.Statuses)),
		TotalBudget:    o.TotalBudget.Units(),
		TotalSpent:     o.TotalSpent.Units(),
		TotalRemaining: o.TotalRemaining.Units(),
		Percentage:     o.Percentage,
		Orphaned:       make([]budgetJSON, 0, len(o.Orphaned)),
	}
	for _, s := range o.Statuses {
		out.Statuses = append(out.Statuses, budgetStatusJSON{
			Budget:       toBudgetJSON(s.Budget),
			Category:     toCategoryJSON(s.Category),
			Spent:        s.Spent.Units(),
			Remaining:    s.Remaining.Units(),
			Percentage:   s.Percentage,
			IsOverBudget: s.IsOverBudget(),
		})
	}
	for _, b := range o.Orphaned {
		out.Orphaned = append(out.Orphaned, toBudgetJSON(b))
	}
	return out
}

func toFinancialSummaryJSON(s core.FinancialSummary) financialSummaryJSON {
	return financialSummaryJSON{
		Month:                s.Period.Month,
		Year:                 s.Period.Year,
		TotalIncome:          s.TotalIncome.Units(),
		TotalExpenses:        s.TotalExpenses.Units(),
		Balance:              s.Balance.Units(),
		MonthlyBudget:        s.MonthlyBudget.Units(),
		BudgetUsedPercentage: s.BudgetUsedPercentage,
	}
}

func toCategoryExpensesJSON(rows []core.CategoryExpenseData) []categoryExpenseJSON {
	out := make([]categoryExpenseJSON, 0, len(rows))
	for _, c := range rows {
		out = append(out, categoryExpenseJSON{
			CategoryID:    c.CategoryID,
			CategoryName:  c.CategoryName,
			CategoryColor: c.CategoryColor,
			Amount:        c.Amount.Units(),
			Percentage:    c.Percentage,
		})
	}
	return out
}

func toReportJSON(r core.Report) reportJSON {
	out := reportJSON{
		Type:          string(r.Type),
		Start:         r.Window.Start,
		End:           r.Window.End,
		Monthly:       make([]monthlyJSON, 0, len(r.Monthly)),
		Categories:    toCategoryExpensesJSON(r.Categories),
		TopCategories: toCategoryExpensesJSON(r.TopCategories),
		Orphaned:      make([]orphanedAmountJSON, 0, len(r.Orphaned)),
	}
	for _, m := range r.Monthly {
		out.Monthly = append(out.Monthly, monthlyJSON{Year: m.Year, Month: m.Month, MonthName: m.MonthName(), Amount: m.Amount.Units()})
	}
	for _, o := range r.Orphaned {
		out.Orphaned = append(out.Orphaned, orphanedAmountJSON{CategoryID: o.CategoryID, Amount: o.Amount.Units()})
	}
	return out
}

func toUserJSON(u core.User) userJSON {
	return userJSON{ID: u.ID, DefaultCurrency: u.DefaultCurrency, CreatedAt: u.CreatedAt}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorBody(w http.ResponseWriter, status int, msg string, fields map[string]string) {
	writeJSON(w, status, errorJSON{Error: msg, Fields: fields})
}

// writeSequence exposes where an aggregation stands among the caller's
// requests so clients can drop stale responses.
func writeSequence(w http.ResponseWriter, out sequence.Outcome) {
	if out.Seq == 0 {
		return
	}
	w.Header().Set(SequenceHeader, strconv.FormatUint(out.Seq, 10))
	w.Header().Set(SupersededHeader, strconv.FormatBool(out.Superseded))
}

var validationErrors = []error{
	core.ErrInvalidMonth,
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrEmptyName,
	core.ErrEmptyUserID,
	core.ErrEmptyCategoryID,
	core.ErrZeroDate,
	core.ErrUnknownCategory,
	core.ErrCustomWindowRequired,
	core.ErrInvalidWindow,
	core.ErrInvalidCurrency,
	core.ErrNameTooLong,
	core.ErrDescriptionTooLong,
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrCategoryInUse):
		return http.StatusConflict
	case aggregate.IsFetchError(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and JSON body and logs it. Server-side
// details are not exposed for 5xx responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())

	var fields map[string]string
	msg := err.Error()
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		fields = reqErr.fields
	}

	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", strconv.Itoa(fetchRetryAfter))
		msg = "data temporarily unavailable"
		logger.WarnContext(r.Context(), "Request failed on backend read",
			log.FieldPath, r.URL.Path,
			log.FieldErrorType, log.ErrorTypeFetch,
			log.FieldError, err.Error())
	case status >= 500:
		msg = "internal error"
		logger.LogError(r.Context(), "Request failed", err, r.Method+" "+r.URL.Path,
			log.NewFields().WithErrorType(log.ErrorTypeInternal))
	default:
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, status,
			log.FieldError, msg)
	}

	writeErrorBody(w, status, msg, fields)
}

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"budgetsmart/internal/aggregate"
	"budgetsmart/internal/core"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report JSON names in validation errors
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// requestError is a client error in the query string or body. Fields maps
// offending fields to the rule they broke.
type requestError struct {
	status int
	msg    string
	fields map[string]string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error {
	return &requestError{status: http.StatusUnprocessableEntity, msg: fmt.Sprintf(format, args...)}
}

// Request bodies.
type (
	budgetRequest struct {
		CategoryID string      `json:"categoryId" validate:"required,max=128"`
		Amount     json.Number `json:"amount" validate:"required"`
		Month      *int        `json:"month" validate:"required,min=0,max=11"`
		Year       *int        `json:"year" validate:"required,min=1970,max=9999"`
	}

	transactionRequest struct {
		Amount      json.Number `json:"amount" validate:"required"`
		Description string      `json:"description" validate:"max=200"`
		CategoryID  string      `json:"categoryId" validate:"required,max=128"`
		Date        string      `json:"date" validate:"required"`
		Type        string      `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	}

	categoryRequest struct {
		Name  string `json:"name" validate:"required,max=100"`
		Icon  string `json:"icon" validate:"max=32"`
		Color int    `json:"color" validate:"min=0,max=255"`
	}

	userRequest struct {
		DefaultCurrency string `json:"defaultCurrency" validate:"required,len=3"`
	}
)

// decodeJSON reads a single JSON object into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		}
		return badRequest("malformed JSON body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("request body must contain a single JSON object")
	}
	if err := validate.Struct(dst); err != nil {
		return &requestError{
			status: http.StatusUnprocessableEntity,
			msg:    "validation failed",
			fields: processValidationErrors(err),
		}
	}
	return nil
}

// processValidationErrors maps each failing field to its failed rule.
func processValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		out[ve.Field()] = ve.Tag()
	}
	return out
}

// parsePeriod reads year and month (0-11) from the query, defaulting each to
// the current one in loc.
func parsePeriod(q url.Values, now time.Time, loc *time.Location) (core.Period, error) {
	current := core.PeriodOf(now, loc)
	p := current

	if v := strings.TrimSpace(q.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, invalid("invalid year %q", v)
		}
		p.Year = y
	}
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, invalid("invalid month %q", v)
		}
		p.Month = m
	}
	if err := p.Validate(); err != nil {
		return core.Period{}, err
	}
	return p, nil
}

// parseReportQuery reads type (default expenses), period (default
// last_month) and, for custom, the inclusive start and end dates.
func parseReportQuery(q url.Values, loc *time.Location) (aggregate.ReportQuery, error) {
	query := aggregate.ReportQuery{Type: core.ReportExpenses, Period: core.LastMonth}

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		rt, err := core.ParseReportType(v)
		if err != nil {
			return aggregate.ReportQuery{}, invalid("%v", err)
		}
		query.Type = rt
	}
	if v := strings.TrimSpace(q.Get("period")); v != "" {
		tp, err := core.ParseTimePeriod(v)
		if err != nil {
			return aggregate.ReportQuery{}, invalid("%v", err)
		}
		query.Period = tp
	}

	startStr, endStr := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))
	if query.Period != core.CustomPeriod {
		return query, nil
	}
	if startStr == "" || endStr == "" {
		return aggregate.ReportQuery{}, core.ErrCustomWindowRequired
	}
	start, err := parseDate(startStr, loc)
	if err != nil {
		return aggregate.ReportQuery{}, invalid("invalid start %q", startStr)
	}
	end, err := parseDate(endStr, loc)
	if err != nil {
		return aggregate.ReportQuery{}, invalid("invalid end %q", endStr)
	}
	if isDateOnly(endStr) {
		// A bare end date covers the whole day
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	query.Window = &core.TimeWindow{Start: start, End: end}
	return query, nil
}

// parseDate accepts YYYY-MM-DD (midnight in loc) or RFC 3339.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if isDateOnly(s) {
		return time.ParseInLocation(time.DateOnly, s, loc)
	}
	return time.Parse(time.RFC3339Nano, s)
}

func isDateOnly(s string) bool {
	return len(s) == len(time.DateOnly)
}

// parseAmount converts a JSON number to money. Zero is accepted only when
// allowZero is set. Exponent forms such as 1e2 are expanded first; a
// decimal comma ("12,50") is passed through to the cents parser.
func parseAmount(n json.Number, allowZero bool) (core.Money, error) {
	parse := core.ParseDecimalToCents
	if allowZero {
		parse = core.ParseNonNegativeDecimalToCents
	}
	raw := strings.TrimSpace(n.String())
	if d, err := decimal.NewFromString(raw); err == nil {
		raw = d.String()
	}
	cents, err := parse(raw)
	if err != nil {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.Money{Cents: cents}, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func (b budgetRequest) toBudget(userID string) (core.Budget, error) {
	amount, err := parseAmount(b.Amount, true)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{
		CategoryID: sanitizeInput(b.CategoryID),
		Amount:     amount,
		Month:      *b.Month,
		Year:       *b.Year,
		UserID:     userID,
	}, nil
}

func (t transactionRequest) toTransaction(userID, id string, loc *time.Location) (core.Transaction, error) {
	amount, err := parseAmount(t.Amount, false)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := parseDate(strings.TrimSpace(t.Date), loc)
	if err != nil {
		return core.Transaction{}, invalid("invalid date %q", t.Date)
	}
	return core.Transaction{
		ID:          id,
		Amount:      amount,
		Description: sanitizeInput(t.Description),
		CategoryID:  sanitizeInput(t.CategoryID),
		Date:        date,
		Type:        core.TransactionType(t.Type),
		UserID:      userID,
	}, nil
}

func (c categoryRequest) toCategory(userID, id string) core.Category {
	return core.Category{
		ID:     id,
		Name:   sanitizeInput(c.Name),
		Icon:   sanitizeInput(c.Icon),
		Color:  c.Color,
		UserID: userID,
	}
}

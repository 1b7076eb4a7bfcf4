package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"budgetsmart/internal/aggregate"
	"budgetsmart/internal/core"
	"budgetsmart/internal/export"
	"budgetsmart/internal/log"
	"budgetsmart/internal/sequence"
)

// Guard keys of the aggregation views. Each view has its own
// last-issued-wins ordering per user.
const (
	viewBudgetStatus = "budget_status"
	viewSummary      = "summary"
	viewReport       = "report"
	viewTransactions = "transactions"
)

// guarded runs fn under the user's sequence for view and writes the
// sequence headers.
func (s *Server) guarded(w http.ResponseWriter, r *http.Request, userID, view string, fn func(ctx context.Context) error) error {
	out, err := s.deps.Guard.Run(r.Context(), sequence.Key(userID, view), fn)
	writeSequence(w, out)
	return err
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request, userID string) {
	engine := s.deps.Engine
	period, err := parsePeriod(r.URL.Query(), engine.Now(), engine.Location())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var overview core.BudgetOverview
	err = s.guarded(w, r, userID, viewBudgetStatus, func(ctx context.Context) error {
		var err error
		overview, err = engine.BudgetStatuses(ctx, userID, period)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetOverviewJSON(overview))
}

// handleSummary serves the dashboard: the period totals plus the newest
// transactions.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, userID string) {
	engine := s.deps.Engine
	q := r.URL.Query()
	period, err := parsePeriod(q, engine.Now(), engine.Location())
	if err != nil {
		writeError(w, r, err)
		return
	}
	recent := aggregate.DefaultRecentLimit
	if v := strings.TrimSpace(q.Get("recent")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 50 {
			writeError(w, r, invalid("recent must be between 1 and 50"))
			return
		}
		recent = n
	}

	var (
		summary core.FinancialSummary
		txns    []core.TransactionWithCategory
	)
	err = s.guarded(w, r, userID, viewSummary, func(ctx context.Context) error {
		var err error
		if summary, err = engine.FinancialSummary(ctx, userID, period); err != nil {
			return err
		}
		txns, err = engine.RecentTransactions(ctx, userID, recent)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryJSON{
		Summary:            toFinancialSummaryJSON(summary),
		RecentTransactions: toJoinedTransactionsJSON(txns),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, userID string) {
	engine := s.deps.Engine
	query, err := parseReportQuery(r.URL.Query(), engine.Location())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var report core.Report
	err = s.guarded(w, r, userID, viewReport, func(ctx context.Context) error {
		var err error
		report, err = engine.Report(ctx, userID, query)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportJSON(report))
}

// handleReportExport renders the report as an XLSX download in the user's
// display currency.
func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	engine := s.deps.Engine
	query, err := parseReportQuery(r.URL.Query(), engine.Location())
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := s.deps.Users.Get(ctx, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := engine.Report(ctx, userID, query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReport(&buf, report, user.DefaultCurrency); err != nil {
		writeError(w, r, fmt.Errorf("render report: %w", err))
		return
	}

	log.FromContext(ctx).InfoContext(ctx, "Report exported",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, userID,
		log.FieldReportType, string(query.Type),
		"bytes", buf.Len())

	filename := fmt.Sprintf("report-%s-%s.xlsx", query.Type, engine.Now().In(engine.Location()).Format(time.DateOnly))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	engine := s.deps.Engine
	q := r.URL.Query()
	period, err := parsePeriod(q, engine.Now(), engine.Location())
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := core.ParseTransactionFilter(strings.ToLower(strings.TrimSpace(q.Get("type"))))
	if err != nil {
		writeError(w, r, invalid("%v", err))
		return
	}

	var rows []core.TransactionWithCategory
	err = s.guarded(w, r, userID, viewTransactions, func(ctx context.Context) error {
		var err error
		rows, err = engine.PeriodTransactions(ctx, userID, period, filter)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJoinedTransactionsJSON(rows))
}

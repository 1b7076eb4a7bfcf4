package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"budgetsmart/internal/aggregate"
	"budgetsmart/internal/backend"
	"budgetsmart/internal/cli"
	"budgetsmart/internal/core"
	"budgetsmart/internal/currency"
	"budgetsmart/internal/export"
	"budgetsmart/internal/log"
)

func main() {
	userID := flag.String("user", "", "user ID to report on (required)")
	reportType := flag.String("type", string(core.ReportExpenses), "report type: expenses, income or all")
	period := flag.String("period", string(core.LastMonth), "last_month, last_3_months, last_6_months, last_year or custom")
	start := flag.String("start", "", "custom window start, YYYY-MM-DD")
	end := flag.String("end", "", "custom window end (inclusive), YYYY-MM-DD")
	out := flag.String("out", "", "output file (default report-<type>-<date>.xlsx)")
	currencyCode := flag.String("currency", "", "currency code for amounts (default: the user's currency)")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		flag.Usage()
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentExport)
	loc := cfg.Location()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	query, err := buildQuery(*reportType, *period, *start, *end, loc)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer result.Close()
	store := result.Store

	code, err := resolveCurrency(ctx, *currencyCode, func(ctx context.Context) (core.User, error) {
		return store.GetUser(ctx, *userID)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	engine := aggregate.NewEngine(store, store, store,
		aggregate.WithLogger(logger),
		aggregate.WithLocation(loc))
	report, err := engine.Report(ctx, *userID, query)
	if err != nil {
		logger.Error("Failed to build report", log.FieldError, err.Error(), log.FieldUserID, *userID)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("report-%s-%s.xlsx", report.Type, engine.Now().Format(time.DateOnly))
	}
	f, err := os.Create(path)
	if err != nil {
		logger.Error("Failed to create output file", log.FieldError, err.Error(), "path", path)
		os.Exit(1)
	}
	if err := export.WriteReport(f, report, code); err != nil {
		_ = f.Close()
		logger.Error("Failed to write report", log.FieldError, err.Error())
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		logger.Error("Failed to close output file", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("Report written",
		"path", path,
		log.FieldReportType, string(report.Type),
		log.FieldCount, len(report.Categories),
		"orphaned", len(report.Orphaned))
}

func buildQuery(reportType, period, start, end string, loc *time.Location) (aggregate.ReportQuery, error) {
	rt, err := core.ParseReportType(reportType)
	if err != nil {
		return aggregate.ReportQuery{}, err
	}
	tp, err := core.ParseTimePeriod(period)
	if err != nil {
		return aggregate.ReportQuery{}, err
	}
	q := aggregate.ReportQuery{Type: rt, Period: tp}
	if tp != core.CustomPeriod {
		return q, nil
	}
	if start == "" || end == "" {
		return aggregate.ReportQuery{}, core.ErrCustomWindowRequired
	}
	s, err := time.ParseInLocation(time.DateOnly, start, loc)
	if err != nil {
		return aggregate.ReportQuery{}, fmt.Errorf("invalid -start: %w", err)
	}
	e, err := time.ParseInLocation(time.DateOnly, end, loc)
	if err != nil {
		return aggregate.ReportQuery{}, fmt.Errorf("invalid -end: %w", err)
	}
	q.Window = &core.TimeWindow{Start: s, End: e.AddDate(0, 0, 1).Add(-time.Nanosecond)}
	return q, nil
}

// resolveCurrency prefers the flag, then the stored user preference. Unknown
// users are reported in the default currency.
func resolveCurrency(ctx context.Context, flagValue string, getUser func(context.Context) (core.User, error)) (string, error) {
	if flagValue != "" {
		return currency.Normalize(flagValue)
	}
	u, err := getUser(ctx)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return core.DefaultCurrency, nil
	case err != nil:
		return "", fmt.Errorf("load user: %w", err)
	case u.DefaultCurrency == "":
		return core.DefaultCurrency, nil
	}
	return u.DefaultCurrency, nil
}

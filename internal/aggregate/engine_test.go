package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetsmart/internal/core"
)

// fakeStore serves fixed collections and can fail any call.
type fakeStore struct {
	budgets      []core.Budget
	categories   []core.Category
	transactions []core.Transaction

	budgetsErr    error
	categoriesErr error
	txnsErr       error
	getErr        error

	getCalls int
}

func (f *fakeStore) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	if f.budgetsErr != nil {
		return nil, f.budgetsErr
	}
	return f.budgets, nil
}

func (f *fakeStore) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return f.categories, nil
}

func (f *fakeStore) GetCategoryByID(ctx context.Context, id string) (core.Category, error) {
	f.getCalls++
	if f.getErr != nil {
		return core.Category{}, f.getErr
	}
	for _, c := range f.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Category{}, core.ErrNotFound
}

func (f *fakeStore) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	if f.txnsErr != nil {
		return nil, f.txnsErr
	}
	return f.transactions, nil
}

func (f *fakeStore) ListTransactionsByPeriod(ctx context.Context, userID string, period core.Period) ([]core.Transaction, error) {
	if f.txnsErr != nil {
		return nil, f.txnsErr
	}
	var out []core.Transaction
	for _, t := range f.transactions {
		if core.PeriodOf(t.Date, time.UTC) == period {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTransactionsByCategory(ctx context.Context, userID, categoryID string) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range f.transactions {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	return out, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func cents(units int64) core.Money {
	return core.Money{Cents: units * 100}
}

func expense(id, categoryID string, units int64, date time.Time) core.Transaction {
	return core.Transaction{ID: id, UserID: "u1", CategoryID: categoryID, Amount: cents(units), Type: core.Expense, Date: date}
}

func income(id, categoryID string, units int64, date time.Time) core.Transaction {
	return core.Transaction{ID: id, UserID: "u1", CategoryID: categoryID, Amount: cents(units), Type: core.Income, Date: date}
}

func newTestEngine(store *fakeStore) *Engine {
	return NewEngine(store, store, store, WithClock(func() time.Time {
		return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	}))
}

var june2024 = core.Period{Month: 5, Year: 2024}

func TestBudgetStatusesFoodScenario(t *testing.T) {
	store := &fakeStore{
		categories: []core.Category{{ID: "c1", Name: "Food", UserID: "u1"}},
		budgets:    []core.Budget{{ID: "b1", CategoryID: "c1", Amount: cents(100), Month: 5, Year: 2024, UserID: "u1"}},
		transactions: []core.Transaction{
			expense("t1", "c1", 40, day(2024, time.June, 10)),
			expense("t2", "c1", 20, day(2024, time.June, 15)),
		},
	}

	overview, err := newTestEngine(store).BudgetStatuses(context.Background(), "u1", june2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overview.Statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(overview.Statuses))
	}
	s := overview.Statuses[0]
	if s.Spent != cents(60) || s.Remaining != cents(40) || s.Percentage != 60.0 {
		t.Fatalf("unexpected status: spent=%d remaining=%d pct=%v", s.Spent.Cents, s.Remaining.Cents, s.Percentage)
	}
	if s.Category.Name != "Food" || s.IsOverBudget() {
		t.Fatalf("unexpected category or over-budget flag: %+v", s)
	}
	if overview.TotalBudget != cents(100) || overview.TotalSpent != cents(60) || overview.TotalRemaining != cents(40) || overview.Percentage != 60.0 {
		t.Fatalf("unexpected totals: %+v", overview)
	}
}

func TestBudgetStatusesNoBudgets(t *testing.T) {
	store := &fakeStore{
		categories:   []core.Category{{ID: "c1", Name: "Food", UserID: "u1"}},
		transactions: []core.Transaction{expense("t1", "c1", 40, day(2024, time.June, 10))},
	}

	overview, err := newTestEngine(store).BudgetStatuses(context.Background(), "u1", june2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(overview.Statuses) != 0 {
		t.Fatalf("expected no statuses, got %d", len(overview.Statuses))
	}
	if overview.TotalBudget.Cents != 0 || overview.TotalSpent.Cents != 0 || overview.TotalRemaining.Cents != 0 || overview.Percentage != 0 {
		t.Fatalf("expected zero totals, got %+v", overview)
	}
}

func TestComputeBudgetStatuses(t *testing.T) {
	categories := []core.Category{
		{ID: "food", Name: "Food"},
		{ID: "rent", Name: "Rent"},
		{ID: "fun", Name: "Fun"},
		{ID: "gym", Name: "Gym"},
	}

	t.Run("zero budget has zero percentage", func(t *testing.T) {
		budgets := []core.Budget{{ID: "b1", CategoryID: "food", Amount: core.Money{}, Month: 5, Year: 2024}}
		txns := []core.Transaction{expense("t1", "food", 10, day(2024, time.June, 1))}

		got := ComputeBudgetStatuses(june2024, budgets, categories, txns, time.UTC)
		if got.Statuses[0].Percentage != 0 || got.Percentage != 0 {
			t.Fatalf("expected 0%%, got %v / %v", got.Statuses[0].Percentage, got.Percentage)
		}
		if !got.Statuses[0].IsOverBudget() {
			t.Fatalf("spending against a zero budget is over budget")
		}
		if got.Statuses[0].Remaining.Cents != -1000 {
			t.Fatalf("expected negative remaining, got %d", got.Statuses[0].Remaining.Cents)
		}
	})

	t.Run("sorted by percentage with stable ties", func(t *testing.T) {
		budgets := []core.Budget{
			{ID: "b-food", CategoryID: "food", Amount: cents(100), Month: 5, Year: 2024},
			{ID: "b-rent", CategoryID: "rent", Amount: cents(200), Month: 5, Year: 2024},
			{ID: "b-fun", CategoryID: "fun", Amount: cents(50), Month: 5, Year: 2024},
			{ID: "b-gym", CategoryID: "gym", Amount: cents(10), Month: 5, Year: 2024},
		}
		txns := []core.Transaction{
			expense("t1", "food", 50, day(2024, time.June, 2)),
			expense("t2", "rent", 100, day(2024, time.June, 3)),
			expense("t3", "fun", 45, day(2024, time.June, 4)),
		}

		got := ComputeBudgetStatuses(june2024, budgets, categories, txns, time.UTC)
		want := []string{"b-fun", "b-food", "b-rent", "b-gym"}
		if len(got.Statuses) != len(want) {
			t.Fatalf("expected %d statuses, got %d", len(want), len(got.Statuses))
		}
		for i, id := range want {
			if got.Statuses[i].Budget.ID != id {
				t.Fatalf("position %d: got %s, want %s", i, got.Statuses[i].Budget.ID, id)
			}
		}
	})

	t.Run("income and other periods are ignored", func(t *testing.T) {
		budgets := []core.Budget{
			{ID: "b1", CategoryID: "food", Amount: cents(100), Month: 5, Year: 2024},
			{ID: "b2", CategoryID: "food", Amount: cents(100), Month: 4, Year: 2024},
		}
		txns := []core.Transaction{
			expense("t1", "food", 10, day(2024, time.June, 2)),
			income("t2", "food", 500, day(2024, time.June, 2)),
			expense("t3", "food", 70, day(2024, time.May, 31)),
		}

		got := ComputeBudgetStatuses(june2024, budgets, categories, txns, time.UTC)
		if len(got.Statuses) != 1 || got.Statuses[0].Spent != cents(10) {
			t.Fatalf("unexpected statuses: %+v", got.Statuses)
		}
	})

	t.Run("dangling budget is reported as orphan", func(t *testing.T) {
		budgets := []core.Budget{
			{ID: "b1", CategoryID: "food", Amount: cents(100), Month: 5, Year: 2024},
			{ID: "b2", CategoryID: "ghost", Amount: cents(300), Month: 5, Year: 2024},
		}
		txns := []core.Transaction{expense("t1", "ghost", 30, day(2024, time.June, 2))}

		got := ComputeBudgetStatuses(june2024, budgets, categories, txns, time.UTC)
		if len(got.Statuses) != 1 || got.Statuses[0].Category.ID != "food" {
			t.Fatalf("every status must reference an existing category: %+v", got.Statuses)
		}
		if len(got.Orphaned) != 1 || got.Orphaned[0].ID != "b2" {
			t.Fatalf("expected b2 orphaned, got %+v", got.Orphaned)
		}
		if got.TotalBudget != cents(100) || got.TotalSpent.Cents != 0 {
			t.Fatalf("orphans must not count in totals: %+v", got)
		}
	})
}

func TestFinancialSummary(t *testing.T) {
	store := &fakeStore{
		budgets: []core.Budget{
			{ID: "b1", CategoryID: "food", Amount: cents(200), Month: 5, Year: 2024},
			{ID: "b2", CategoryID: "rent", Amount: cents(800), Month: 6, Year: 2024},
		},
		transactions: []core.Transaction{
			income("t1", "salary", 3000, day(2024, time.June, 1)),
			expense("t2", "food", 50, day(2024, time.June, 2)),
			expense("t3", "travel", 400, day(2024, time.June, 3)),
			expense("t4", "food", 25, day(2024, time.July, 1)),
		},
	}

	got, err := newTestEngine(store).FinancialSummary(context.Background(), "u1", june2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalIncome != cents(3000) || got.TotalExpenses != cents(450) {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got.Balance != got.TotalIncome.Sub(got.TotalExpenses) {
		t.Fatalf("balance must equal income minus expenses: %+v", got)
	}
	if got.MonthlyBudget != cents(200) || got.BudgetedExpenses != cents(50) {
		t.Fatalf("unexpected budget fields: %+v", got)
	}
	if got.BudgetUsedPercentage != 25.0 {
		t.Fatalf("expected 25%% used, got %v", got.BudgetUsedPercentage)
	}
	if got.BudgetedExpenses.Cents > got.TotalExpenses.Cents {
		t.Fatalf("budgeted expenses must not exceed total expenses")
	}
}

func TestComputeFinancialSummaryEdges(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		got := ComputeFinancialSummary(june2024, nil, nil, time.UTC)
		if got != (core.FinancialSummary{Period: june2024}) {
			t.Fatalf("expected all-zero summary, got %+v", got)
		}
	})

	t.Run("no budget gives zero percentage", func(t *testing.T) {
		txns := []core.Transaction{expense("t1", "food", 10, day(2024, time.June, 2))}
		got := ComputeFinancialSummary(june2024, nil, txns, time.UTC)
		if got.MonthlyBudget.Cents != 0 || got.BudgetUsedPercentage != 0 {
			t.Fatalf("unexpected summary: %+v", got)
		}
		if got.Balance.Cents != -1000 {
			t.Fatalf("expected negative balance, got %d", got.Balance.Cents)
		}
	})
}

func TestReportCategoryBreakdown(t *testing.T) {
	store := &fakeStore{
		categories: []core.Category{
			{ID: "food", Name: "Food", Color: 1},
			{ID: "rent", Name: "Rent", Color: 2},
			{ID: "fun", Name: "Fun", Color: 3},
			{ID: "gym", Name: "Gym", Color: 4},
			{ID: "books", Name: "Books", Color: 5},
		},
		transactions: []core.Transaction{
			expense("t1", "food", 30, day(2024, time.June, 20)),
			expense("t2", "ghost", 70, day(2024, time.June, 19)),
			expense("t3", "rent", 500, day(2024, time.June, 1)),
			expense("t4", "fun", 30, day(2024, time.May, 28)),
			expense("t5", "gym", 20, day(2024, time.May, 10)),
			expense("t6", "books", 10, day(2024, time.May, 5)),
			income("t7", "food", 1000, day(2024, time.June, 1)),
			expense("t8", "food", 999, day(2023, time.January, 1)),
		},
	}

	report, err := newTestEngine(store).Report(context.Background(), "u1", ReportQuery{Type: core.ReportExpenses, Period: core.Last3Months})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"rent", "food", "fun", "gym", "books"}
	if len(report.Categories) != len(wantOrder) {
		t.Fatalf("expected %d categories, got %+v", len(wantOrder), report.Categories)
	}
	var emitted int64
	for i, id := range wantOrder {
		if report.Categories[i].CategoryID != id {
			t.Fatalf("position %d: got %s, want %s", i, report.Categories[i].CategoryID, id)
		}
		emitted += report.Categories[i].Amount.Cents
	}
	if len(report.TopCategories) != TopCategoriesLimit || report.TopCategories[3].CategoryID != "gym" {
		t.Fatalf("unexpected top categories: %+v", report.TopCategories)
	}

	var input int64
	for _, txn := range FilterTransactions(store.transactions, report.Window, core.ReportExpenses) {
		input += txn.Amount.Cents
	}
	if input-emitted != cents(70).Cents {
		t.Fatalf("ghost amount must be missing from buckets exactly: input=%d emitted=%d", input, emitted)
	}
	if len(report.Orphaned) != 1 || report.Orphaned[0].CategoryID != "ghost" || report.Orphaned[0].Amount != cents(70) {
		t.Fatalf("unexpected orphans: %+v", report.Orphaned)
	}
	if report.Categories[0].Percentage != 500.0*100/590.0 {
		t.Fatalf("unexpected share %v", report.Categories[0].Percentage)
	}
}

func TestBucketByMonth(t *testing.T) {
	txns := []core.Transaction{
		expense("t1", "food", 10, day(2024, time.June, 30)),
		expense("t2", "food", 5, day(2024, time.June, 1)),
		expense("t3", "food", 7, day(2023, time.December, 31)),
		expense("t4", "food", 3, day(2024, time.January, 1)),
	}

	got := BucketByMonth(txns, time.UTC)
	want := []core.MonthlyExpenseData{
		{Year: 2023, Month: 11, Amount: cents(7)},
		{Year: 2024, Month: 0, Amount: cents(3)},
		{Year: 2024, Month: 5, Amount: cents(15)},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d buckets, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bucket %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReportWindowBoundariesInclusive(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	txns := []core.Transaction{
		expense("t1", "food", 1, start),
		expense("t2", "food", 2, end),
		expense("t3", "food", 4, start.Add(-time.Second)),
		expense("t4", "food", 8, end.Add(time.Second)),
	}
	categories := []core.Category{{ID: "food", Name: "Food"}}

	store := &fakeStore{categories: categories, transactions: txns}
	report, err := newTestEngine(store).Report(context.Background(), "u1", ReportQuery{
		Type:   core.ReportAll,
		Period: core.CustomPeriod,
		Window: &core.TimeWindow{Start: start, End: end},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Categories) != 1 || report.Categories[0].Amount != cents(3) {
		t.Fatalf("expected boundary transactions only, got %+v", report.Categories)
	}
}

func TestReportTypeFilter(t *testing.T) {
	categories := []core.Category{{ID: "food", Name: "Food"}, {ID: "salary", Name: "Salary"}}
	txns := []core.Transaction{
		expense("t1", "food", 10, day(2024, time.June, 1)),
		income("t2", "salary", 100, day(2024, time.June, 1)),
	}
	window := core.TimeWindow{Start: day(2024, time.January, 1), End: day(2024, time.December, 31)}

	cases := []struct {
		rt   core.ReportType
		want int64
	}{
		{core.ReportExpenses, 1000},
		{core.ReportIncome, 10000},
		{core.ReportAll, 11000},
	}
	for _, tc := range cases {
		t.Run(string(tc.rt), func(t *testing.T) {
			report := ComputeReport(tc.rt, window, categories, txns, time.UTC)
			var total int64
			for _, m := range report.Monthly {
				total += m.Amount.Cents
			}
			if total != tc.want {
				t.Fatalf("got %d, want %d", total, tc.want)
			}
		})
	}
}

func TestReportQueryErrors(t *testing.T) {
	engine := newTestEngine(&fakeStore{})
	ctx := context.Background()

	if _, err := engine.Report(ctx, "u1", ReportQuery{Type: core.ReportAll, Period: core.CustomPeriod}); !errors.Is(err, core.ErrCustomWindowRequired) {
		t.Fatalf("expected ErrCustomWindowRequired, got %v", err)
	}
	inverted := &core.TimeWindow{Start: day(2024, time.June, 2), End: day(2024, time.June, 1)}
	if _, err := engine.Report(ctx, "u1", ReportQuery{Type: core.ReportAll, Period: core.CustomPeriod, Window: inverted}); !errors.Is(err, core.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := engine.Report(ctx, "u1", ReportQuery{Type: "transfers", Period: core.LastMonth}); err == nil {
		t.Fatalf("expected error for unknown report type")
	}
}

func TestFetchFailureFailsWholeAggregation(t *testing.T) {
	boom := errors.New("connection reset")
	ctx := context.Background()

	cases := []struct {
		name  string
		store *fakeStore
		run   func(*Engine) error
	}{
		{
			name:  "budget status budgets",
			store: &fakeStore{budgetsErr: boom},
			run: func(e *Engine) error {
				overview, err := e.BudgetStatuses(ctx, "u1", june2024)
				if len(overview.Statuses) != 0 {
					t.Errorf("partial result returned with error")
				}
				return err
			},
		},
		{
			name:  "budget status categories",
			store: &fakeStore{categoriesErr: boom, budgets: []core.Budget{{CategoryID: "c1", Month: 5, Year: 2024}}},
			run: func(e *Engine) error {
				_, err := e.BudgetStatuses(ctx, "u1", june2024)
				return err
			},
		},
		{
			name:  "summary transactions",
			store: &fakeStore{txnsErr: boom},
			run: func(e *Engine) error {
				summary, err := e.FinancialSummary(ctx, "u1", june2024)
				if summary != (core.FinancialSummary{}) {
					t.Errorf("partial summary returned with error")
				}
				return err
			},
		},
		{
			name:  "report",
			store: &fakeStore{txnsErr: boom},
			run: func(e *Engine) error {
				_, err := e.Report(ctx, "u1", ReportQuery{Type: core.ReportAll, Period: core.LastYear})
				return err
			},
		},
		{
			name:  "recent category lookup",
			store: &fakeStore{getErr: boom, transactions: []core.Transaction{expense("t1", "c1", 1, day(2024, time.June, 1))}},
			run: func(e *Engine) error {
				_, err := e.RecentTransactions(ctx, "u1", 4)
				return err
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run(newTestEngine(tc.store))
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if !errors.Is(err, boom) {
				t.Fatalf("FetchError must wrap the cause, got %v", err)
			}
			if !IsFetchError(err) {
				t.Fatalf("IsFetchError must report true")
			}
		})
	}
}

func TestEmptyUserRejected(t *testing.T) {
	engine := newTestEngine(&fakeStore{})
	if _, err := engine.BudgetStatuses(context.Background(), " ", june2024); !errors.Is(err, core.ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
	if _, err := engine.FinancialSummary(context.Background(), "u1", core.Period{Month: 12, Year: 2024}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestRecentTransactions(t *testing.T) {
	store := &fakeStore{
		categories: []core.Category{{ID: "food", Name: "Food", UserID: "u1"}},
		transactions: []core.Transaction{
			expense("old", "food", 1, day(2024, time.January, 1)),
			expense("t5", "food", 5, day(2024, time.June, 5)),
			expense("t4", "ghost", 4, day(2024, time.June, 4)),
			expense("t3", "food", 3, day(2024, time.June, 3)),
			expense("t2", "food", 2, day(2024, time.June, 2)),
		},
	}

	got, err := newTestEngine(store).RecentTransactions(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"t5", "t3", "t2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), got)
	}
	for i, id := range want {
		if got[i].Transaction.ID != id || got[i].Category.Name != "Food" {
			t.Fatalf("row %d: got %+v", i, got[i])
		}
	}
	if store.getCalls != 2 {
		t.Fatalf("expected one lookup per distinct category, got %d", store.getCalls)
	}
}

func TestPeriodTransactions(t *testing.T) {
	store := &fakeStore{
		categories: []core.Category{{ID: "food", Name: "Food"}, {ID: "salary", Name: "Salary"}},
		transactions: []core.Transaction{
			expense("t1", "food", 10, day(2024, time.June, 1)),
			income("t2", "salary", 100, day(2024, time.June, 20)),
			expense("t3", "ghost", 10, day(2024, time.June, 2)),
			expense("t4", "food", 10, day(2024, time.July, 1)),
		},
	}
	engine := newTestEngine(store)

	all, err := engine.PeriodTransactions(context.Background(), "u1", june2024, core.FilterAll)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].Transaction.ID != "t2" || all[1].Transaction.ID != "t1" {
		t.Fatalf("unexpected rows: %+v", all)
	}

	expenses, err := engine.PeriodTransactions(context.Background(), "u1", june2024, core.FilterExpense)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expenses) != 1 || expenses[0].Transaction.ID != "t1" {
		t.Fatalf("unexpected rows: %+v", expenses)
	}
}

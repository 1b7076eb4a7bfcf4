package aggregate

import (
	"context"
	"sort"
	"time"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
)

// BudgetStatuses returns the budget-vs-spend overview of one period.
func (e *Engine) BudgetStatuses(ctx context.Context, userID string, period core.Period) (core.BudgetOverview, error) {
	if err := checkUser(userID); err != nil {
		return core.BudgetOverview{}, err
	}
	if err := period.Validate(); err != nil {
		return core.BudgetOverview{}, err
	}

	snap, err := e.fetch(ctx, userID, fetchPlan{budgets: true, categories: true, periodTxns: &period})
	if err != nil {
		e.logFetchFailure(ctx, log.OpBudgetStatus, userID, err)
		return core.BudgetOverview{}, err
	}

	overview := ComputeBudgetStatuses(period, snap.budgets, snap.categories, snap.transactions, e.loc)
	e.logOrphans(ctx, log.OpBudgetStatus, userID, len(overview.Orphaned), 0)
	e.logger.DebugContext(ctx, "Computed budget statuses",
		log.FieldUserID, userID,
		log.FieldMonth, period.Month,
		log.FieldYear, period.Year,
		log.FieldCount, len(overview.Statuses))
	return overview, nil
}

// ComputeBudgetStatuses builds the overview from fetched collections.
// Budgets of other periods are ignored; budgets whose category is missing
// are reported in Orphaned and left out of the totals. Only EXPENSE
// transactions dated inside the period count as spent. Statuses are sorted
// by percentage descending, keeping budget order for ties.
func ComputeBudgetStatuses(period core.Period, budgets []core.Budget, categories []core.Category, transactions []core.Transaction, loc *time.Location) core.BudgetOverview {
	overview := core.BudgetOverview{Period: period}
	byID := indexCategories(categories)

	spentByCategory := make(map[string]core.Money)
	for _, t := range transactions {
		if t.Type != core.Expense || core.PeriodOf(t.Date, loc) != period {
			continue
		}
		spentByCategory[t.CategoryID] = spentByCategory[t.CategoryID].Add(t.Amount)
	}

	for _, b := range budgets {
		if !b.Matches(period) {
			continue
		}
		category, ok := byID[b.CategoryID]
		if !ok {
			overview.Orphaned = append(overview.Orphaned, b)
			continue
		}
		spent := spentByCategory[b.CategoryID]
		overview.Statuses = append(overview.Statuses, core.BudgetStatus{
			Budget:     b,
			Category:   category,
			Spent:      spent,
			Remaining:  b.Amount.Sub(spent),
			Percentage: core.Percentage(spent, b.Amount),
		})
		overview.TotalBudget = overview.TotalBudget.Add(b.Amount)
		overview.TotalSpent = overview.TotalSpent.Add(spent)
	}

	sort.SliceStable(overview.Statuses, func(i, j int) bool {
		return overview.Statuses[i].Percentage > overview.Statuses[j].Percentage
	})

	overview.TotalRemaining = overview.TotalBudget.Sub(overview.TotalSpent)
	overview.Percentage = core.Percentage(overview.TotalSpent, overview.TotalBudget)
	return overview
}

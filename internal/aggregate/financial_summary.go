package aggregate

import (
	"context"
	"time"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
)

// FinancialSummary returns the dashboard totals of one period.
func (e *Engine) FinancialSummary(ctx context.Context, userID string, period core.Period) (core.FinancialSummary, error) {
	if err := checkUser(userID); err != nil {
		return core.FinancialSummary{}, err
	}
	if err := period.Validate(); err != nil {
		return core.FinancialSummary{}, err
	}

	snap, err := e.fetch(ctx, userID, fetchPlan{budgets: true, periodTxns: &period})
	if err != nil {
		e.logFetchFailure(ctx, log.OpSummary, userID, err)
		return core.FinancialSummary{}, err
	}

	return ComputeFinancialSummary(period, snap.budgets, snap.transactions, e.loc), nil
}

// ComputeFinancialSummary totals income, expenses and budgets of a period.
// BudgetUsedPercentage relates only the expenses of budgeted categories to
// the monthly budget, so spending in unbudgeted categories does not move it.
func ComputeFinancialSummary(period core.Period, budgets []core.Budget, transactions []core.Transaction, loc *time.Location) core.FinancialSummary {
	summary := core.FinancialSummary{Period: period}

	budgeted := make(map[string]struct{})
	for _, b := range budgets {
		if !b.Matches(period) {
			continue
		}
		budgeted[b.CategoryID] = struct{}{}
		summary.MonthlyBudget = summary.MonthlyBudget.Add(b.Amount)
	}

	for _, t := range transactions {
		if core.PeriodOf(t.Date, loc) != period {
			continue
		}
		switch t.Type {
		case core.Income:
			summary.TotalIncome = summary.TotalIncome.Add(t.Amount)
		case core.Expense:
			summary.TotalExpenses = summary.TotalExpenses.Add(t.Amount)
			if _, ok := budgeted[t.CategoryID]; ok {
				summary.BudgetedExpenses = summary.BudgetedExpenses.Add(t.Amount)
			}
		}
	}

	summary.Balance = summary.TotalIncome.Sub(summary.TotalExpenses)
	summary.BudgetUsedPercentage = core.Percentage(summary.BudgetedExpenses, summary.MonthlyBudget)
	return summary
}

package aggregate

import (
	"context"
	"errors"
	"sort"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
)

// DefaultRecentLimit is the number of transactions shown on the dashboard.
const DefaultRecentLimit = 4

// RecentTransactions returns the newest limit transactions of the user joined
// with their category. Transactions whose category no longer exists are
// dropped, so fewer than limit items may be returned.
func (e *Engine) RecentTransactions(ctx context.Context, userID string, limit int) ([]core.TransactionWithCategory, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	snap, err := e.fetch(ctx, userID, fetchPlan{allTxns: true})
	if err != nil {
		e.logFetchFailure(ctx, log.OpList, userID, err)
		return nil, err
	}

	txns := newestFirst(snap.transactions)
	if len(txns) > limit {
		txns = txns[:limit]
	}

	resolved := make(map[string]*core.Category)
	out := make([]core.TransactionWithCategory, 0, len(txns))
	orphans := 0
	for _, t := range txns {
		category, cached := resolved[t.CategoryID]
		if !cached {
			c, err := e.categories.GetCategoryByID(ctx, t.CategoryID)
			switch {
			case errors.Is(err, core.ErrNotFound):
				category = nil
			case err != nil:
				ferr := &FetchError{Op: "category " + t.CategoryID, Err: err}
				e.logFetchFailure(ctx, log.OpList, userID, ferr)
				return nil, ferr
			case c.UserID != userID:
				category = nil
			default:
				category = &c
			}
			resolved[t.CategoryID] = category
		}
		if category == nil {
			orphans++
			continue
		}
		out = append(out, core.TransactionWithCategory{Transaction: t, Category: *category})
	}

	e.logOrphans(ctx, log.OpList, userID, 0, orphans)
	return out, nil
}

// PeriodTransactions returns the transactions of one period matching filter,
// newest first, joined with their category.
func (e *Engine) PeriodTransactions(ctx context.Context, userID string, period core.Period, filter core.TransactionFilter) ([]core.TransactionWithCategory, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	snap, err := e.fetch(ctx, userID, fetchPlan{categories: true, periodTxns: &period})
	if err != nil {
		e.logFetchFailure(ctx, log.OpList, userID, err)
		return nil, err
	}

	joined, orphans := JoinCategories(newestFirst(snap.transactions), snap.categories, func(t core.Transaction) bool {
		return filter.Includes(t.Type) && core.PeriodOf(t.Date, e.loc) == period
	})
	e.logOrphans(ctx, log.OpList, userID, 0, orphans)
	return joined, nil
}

// JoinCategories pairs each transaction accepted by keep with its category.
// It returns the joined rows and the number of dropped dangling rows.
func JoinCategories(transactions []core.Transaction, categories []core.Category, keep func(core.Transaction) bool) ([]core.TransactionWithCategory, int) {
	byID := indexCategories(categories)
	out := make([]core.TransactionWithCategory, 0, len(transactions))
	orphans := 0
	for _, t := range transactions {
		if keep != nil && !keep(t) {
			continue
		}
		category, ok := byID[t.CategoryID]
		if !ok {
			orphans++
			continue
		}
		out = append(out, core.TransactionWithCategory{Transaction: t, Category: category})
	}
	return out, orphans
}

// newestFirst returns a copy of transactions sorted by date descending.
func newestFirst(transactions []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(transactions))
	copy(out, transactions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// Package aggregate computes the derived budget views: budget status,
// financial summary, reports and category-joined transaction lists.
//
// Every aggregation fetches whole collections from its collaborators, then
// runs a pure computation over that snapshot. A failing fetch fails the
// whole aggregation with a *FetchError; no partial result is returned.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
	"budgetsmart/internal/ports"
)

// FetchError reports that a collaborator call failed.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err is (or wraps) a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Engine runs aggregations against the persistence collaborators.
type Engine struct {
	budgets      ports.BudgetLister
	categories   ports.CategoryReader
	transactions ports.TransactionLister

	logger *log.Logger
	now    func() time.Time
	loc    *time.Location
}

type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l.WithComponent(log.ComponentAggregate)
		}
	}
}

// WithClock replaces time.Now, used to resolve relative report windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation sets the zone used for month boundaries and bucketing.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func NewEngine(budgets ports.BudgetLister, categories ports.CategoryReader, transactions ports.TransactionLister, opts ...Option) *Engine {
	e := &Engine{
		budgets:      budgets,
		categories:   categories,
		transactions: transactions,
		logger:       log.Discard().WithComponent(log.ComponentAggregate),
		now:          time.Now,
		loc:          time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the zone used for month arithmetic.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now returns the engine clock's current time in the engine location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// snapshot is the fetched input of one aggregation.
type snapshot struct {
	budgets      []core.Budget
	categories   []core.Category
	transactions []core.Transaction
}

type fetchPlan struct {
	budgets    bool
	categories bool
	periodTxns *core.Period
	allTxns    bool
}

// fetch loads the requested collections concurrently. The first failure
// cancels the remaining calls and is returned as a *FetchError.
func (e *Engine) fetch(ctx context.Context, userID string, plan fetchPlan) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)

	if plan.budgets {
		g.Go(func() error {
			budgets, err := e.budgets.ListBudgets(gctx, userID)
			if err != nil {
				return &FetchError{Op: "budgets", Err: err}
			}
			snap.budgets = budgets
			return nil
		})
	}
	if plan.categories {
		g.Go(func() error {
			categories, err := e.categories.ListCategories(gctx, userID)
			if err != nil {
				return &FetchError{Op: "categories", Err: err}
			}
			snap.categories = categories
			return nil
		})
	}
	if plan.periodTxns != nil {
		period := *plan.periodTxns
		g.Go(func() error {
			txns, err := e.transactions.ListTransactionsByPeriod(gctx, userID, period)
			if err != nil {
				return &FetchError{Op: "transactions by period", Err: err}
			}
			snap.transactions = txns
			return nil
		})
	} else if plan.allTxns {
		g.Go(func() error {
			txns, err := e.transactions.ListTransactions(gctx, userID)
			if err != nil {
				return &FetchError{Op: "transactions", Err: err}
			}
			snap.transactions = txns
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return core.ErrEmptyUserID
	}
	return nil
}

func (e *Engine) logFetchFailure(ctx context.Context, op, userID string, err error) {
	e.logger.WarnContext(ctx, "Aggregation failed",
		log.NewFields().
			WithOperation(op).
			WithUser(userID).
			WithErrorType(log.ErrorTypeFetch).
			WithError(err).
			ToSlice()...)
}

func (e *Engine) logOrphans(ctx context.Context, op, userID string, budgets, transactions int) {
	if budgets == 0 && transactions == 0 {
		return
	}
	e.logger.WarnContext(ctx, "Dropped records with dangling category references",
		log.FieldOperation, op,
		log.FieldUserID, userID,
		"orphaned_budgets", budgets,
		"orphaned_transactions", transactions)
}

func indexCategories(categories []core.Category) map[string]core.Category {
	idx := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		idx[c.ID] = c
	}
	return idx
}

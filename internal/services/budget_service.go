// Package services orchestrates write-side operations over the store:
// budget upserts, category and transaction entry, user profiles, and the
// cleanup that follows a category deletion.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"budgetsmart/internal/core"
	"budgetsmart/internal/lock"
	"budgetsmart/internal/log"
	"budgetsmart/internal/ports"
)

// BudgetService saves budgets so that at most one exists per
// (user, category, month, year).
type BudgetService struct {
	budgets    ports.BudgetRepository
	categories ports.CategoryReader
	locker     lock.Locker
	logger     *log.Logger
}

func NewBudgetService(budgets ports.BudgetRepository, categories ports.CategoryReader, locker lock.Locker, logger *log.Logger) *BudgetService {
	if locker == nil {
		locker = lock.NewMemory()
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &BudgetService{
		budgets:    budgets,
		categories: categories,
		locker:     locker,
		logger:     logger.WithComponent(log.ComponentBudget),
	}
}

// budgetLockKey identifies the upsert critical section of one budget slot.
func budgetLockKey(userID, categoryID string, p core.Period) string {
	return "budget:" + userID + ":" + categoryID + ":" + strconv.Itoa(p.Month) + ":" + strconv.Itoa(p.Year)
}

// Save updates the budget of the category for the period, or creates it.
func (s *BudgetService) Save(ctx context.Context, userID, categoryID string, amount core.Money, period core.Period) (core.Budget, error) {
	b := core.Budget{
		CategoryID: categoryID,
		Amount:     amount,
		Month:      period.Month,
		Year:       period.Year,
		UserID:     userID,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := ownedCategory(ctx, s.categories, userID, categoryID); err != nil {
		return core.Budget{}, err
	}

	unlock, err := s.locker.Lock(ctx, budgetLockKey(userID, categoryID, period))
	if err != nil {
		return core.Budget{}, fmt.Errorf("lock budget: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "Failed to release budget lock", log.FieldError, err.Error())
		}
	}()

	existing, err := s.budgets.ListBudgets(ctx, userID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("list budgets: %w", err)
	}
	for _, e := range existing {
		if e.CategoryID == categoryID && e.Matches(period) {
			b.ID = e.ID
			if err := s.budgets.UpdateBudget(ctx, b); err != nil {
				return core.Budget{}, fmt.Errorf("update budget: %w", err)
			}
			s.logger.InfoContext(ctx, "Budget updated", s.fields(b, log.OpUpdate)...)
			return b, nil
		}
	}

	id, err := s.budgets.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	b.ID = id
	s.logger.InfoContext(ctx, "Budget created", s.fields(b, log.OpCreate)...)
	return b, nil
}

// Delete removes a budget owned by userID.
func (s *BudgetService) Delete(ctx context.Context, userID, id string) error {
	b, err := s.budgets.GetBudget(ctx, id)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	if err := s.budgets.DeleteBudget(ctx, id); err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget deleted", s.fields(b, log.OpDelete)...)
	return nil
}

// DeleteForCategory removes every budget of the category and returns how
// many were removed. Budgets already gone are not an error.
func (s *BudgetService) DeleteForCategory(ctx context.Context, userID, categoryID string) (int, error) {
	budgets, err := s.budgets.ListBudgets(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list budgets: %w", err)
	}
	removed := 0
	for _, b := range budgets {
		if b.CategoryID != categoryID {
			continue
		}
		if err := s.budgets.DeleteBudget(ctx, b.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
			return removed, fmt.Errorf("delete budget %s: %w", b.ID, err)
		}
		removed++
	}
	return removed, nil
}

func (s *BudgetService) fields(b core.Budget, op string) []any {
	return log.NewFields().
		WithOperation(op).
		WithUser(b.UserID).
		WithPeriod(b.Month, b.Year).
		With(log.FieldBudgetID, b.ID).
		With(log.FieldCategoryID, b.CategoryID).
		With(log.FieldAmountCents, b.Amount.Cents).
		ToSlice()
}

// ownedCategory checks that categoryID exists and belongs to userID.
func ownedCategory(ctx context.Context, categories ports.CategoryReader, userID, categoryID string) error {
	c, err := categories.GetCategoryByID(ctx, categoryID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrUnknownCategory, categoryID)
	}
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	if c.UserID != userID {
		return fmt.Errorf("%w: %s", core.ErrUnknownCategory, categoryID)
	}
	return nil
}

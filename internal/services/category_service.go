package services

import (
	"context"
	"fmt"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
	"budgetsmart/internal/ports"
)

// EventPublisher announces category deletions to the cleanup worker.
type EventPublisher interface {
	PublishCategoryDeleted(ctx context.Context, userID, categoryID string) error
}

type CategoryService struct {
	categories   ports.CategoryRepository
	transactions ports.TransactionLister
	budgets      *BudgetService
	events       EventPublisher
	logger       *log.Logger
}

// NewCategoryService wires category writes. When events is nil the budget
// cleanup after a delete runs inline instead of in the worker.
func NewCategoryService(categories ports.CategoryRepository, transactions ports.TransactionLister, budgets *BudgetService, events EventPublisher, logger *log.Logger) *CategoryService {
	if logger == nil {
		logger = log.Discard()
	}
	return &CategoryService{
		categories:   categories,
		transactions: transactions,
		budgets:      budgets,
		events:       events,
		logger:       logger.WithComponent(log.ComponentCategory),
	}
}

func (s *CategoryService) List(ctx context.Context, userID string) ([]core.Category, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	return s.categories.ListCategories(ctx, userID)
}

func (s *CategoryService) Create(ctx context.Context, c core.Category) (core.Category, error) {
	c.ID = ""
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	id, err := s.categories.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	c.ID = id
	s.logger.InfoContext(ctx, "Category created",
		log.FieldOperation, log.OpCreate,
		log.FieldUserID, c.UserID,
		log.FieldCategoryID, c.ID)
	return c, nil
}

// Update fully replaces a category owned by c.UserID.
func (s *CategoryService) Update(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if _, err := s.owned(ctx, c.UserID, c.ID); err != nil {
		return core.Category{}, err
	}
	if err := s.categories.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	return c, nil
}

// Delete removes a category that no transaction references, then cleans
// up its budgets. Once the category itself is gone Delete succeeds; a budget
// cleanup that fails after that is logged as pending and left to the
// cleanup worker or a later retry.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}

	txns, err := s.transactions.ListTransactionsByCategory(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("list transactions of category: %w", err)
	}
	if len(txns) > 0 {
		return fmt.Errorf("%w: %d transactions", core.ErrCategoryInUse, len(txns))
	}

	if err := s.categories.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldUserID, userID,
		log.FieldCategoryID, id)

	if s.events != nil {
		err := s.events.PublishCategoryDeleted(ctx, userID, id)
		if err == nil {
			return nil
		}
		s.logger.WarnContext(ctx, "Failed to publish category deleted event, cleaning up inline",
			log.FieldCategoryID, id,
			log.FieldError, err.Error())
	}
	if err := s.cleanup(ctx, userID, id); err != nil {
		s.logger.ErrorContext(ctx, "Budget cleanup pending for deleted category",
			log.FieldOperation, log.OpCleanup,
			log.FieldUserID, userID,
			log.FieldCategoryID, id,
			log.FieldError, err.Error())
	}
	return nil
}

func (s *CategoryService) cleanup(ctx context.Context, userID, categoryID string) error {
	if s.budgets == nil {
		return nil
	}
	n, err := s.budgets.DeleteForCategory(ctx, userID, categoryID)
	if err != nil {
		return fmt.Errorf("clean up budgets: %w", err)
	}
	s.logger.InfoContext(ctx, "Removed budgets of deleted category",
		log.FieldOperation, log.OpCleanup,
		log.FieldCategoryID, categoryID,
		log.FieldCount, n)
	return nil
}

func (s *CategoryService) owned(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := s.categories.GetCategoryByID(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	if c.UserID != userID {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

// Package ports declares the persistence collaborators used by the
// aggregation engine and the write-side services.
package ports

import (
	"context"

	"budgetsmart/internal/core"
)

// Read-side collaborators. Lists never contain nil elements; an empty result
// is an empty (or nil) slice, not an error.
type (
	BudgetLister interface {
		ListBudgets(ctx context.Context, userID string) ([]core.Budget, error)
	}

	CategoryReader interface {
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
		// GetCategoryByID returns core.ErrNotFound when the category does not exist.
		GetCategoryByID(ctx context.Context, id string) (core.Category, error)
	}

	// TransactionLister returns transactions newest first.
	TransactionLister interface {
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
		ListTransactionsByPeriod(ctx context.Context, userID string, period core.Period) ([]core.Transaction, error)
		ListTransactionsByCategory(ctx context.Context, userID, categoryID string) ([]core.Transaction, error)
	}
)

// Write-side repositories. Updates are full replaces keyed by ID; Create
// assigns an ID when the entity has none and returns it.
type (
	BudgetRepository interface {
		BudgetLister
		GetBudget(ctx context.Context, id string) (core.Budget, error)
		CreateBudget(ctx context.Context, b core.Budget) (string, error)
		UpdateBudget(ctx context.Context, b core.Budget) error
		DeleteBudget(ctx context.Context, id string) error
	}

	CategoryRepository interface {
		CategoryReader
		CreateCategory(ctx context.Context, c core.Category) (string, error)
		UpdateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, id string) error
	}

	TransactionRepository interface {
		TransactionLister
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		CreateTransaction(ctx context.Context, t core.Transaction) (string, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
	}

	UserRepository interface {
		GetUser(ctx context.Context, id string) (core.User, error)
		CreateUser(ctx context.Context, u core.User) error
		UpdateUser(ctx context.Context, u core.User) error
	}

	// Store is a complete backend.
	Store interface {
		BudgetRepository
		CategoryRepository
		TransactionRepository
		UserRepository
	}
)

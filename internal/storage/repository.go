// Package storage is the SQLite implementation of ports.Store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db     *sql.DB
	loc    *time.Location
	logger *log.Logger
}

func NewSQLiteRepository(dbPath string, loc *time.Location, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Discard()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		loc:    loc,
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
}

// execOne runs a statement that must touch exactly one row.
func (r *SQLiteRepository) execOne(ctx context.Context, kind, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// Users

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	var (
		u         core.User
		createdMs int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, default_currency, created_at_ms FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.DefaultCurrency, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, notFound("user", id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdMs).UTC()
	return u, nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return core.ErrEmptyUserID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, default_currency, created_at_ms) VALUES (?, ?, ?)`,
		u.ID, u.DefaultCurrency, u.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	return r.execOne(ctx, "user", u.ID,
		`UPDATE users SET default_currency = ? WHERE id = ?`, u.DefaultCurrency, u.ID)
}

// Categories

const categoryColumns = `id, user_id, name, icon, color`

func scanCategory(sc interface{ Scan(...any) error }) (core.Category, error) {
	var c core.Category
	err := sc.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color)
	return c, err
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategoryByID(ctx context.Context, id string) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, notFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	c.ID = newID(c.ID)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Icon, c.Color)
	if err != nil {
		return "", fmt.Errorf("create category: %w", err)
	}
	r.logger.DebugContext(ctx, "Category saved to SQLite", log.FieldCategoryID, c.ID, log.FieldUserID, c.UserID)
	return c.ID, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	return r.execOne(ctx, "category", c.ID,
		`UPDATE categories SET user_id = ?, name = ?, icon = ?, color = ? WHERE id = ?`,
		c.UserID, c.Name, c.Icon, c.Color, c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	return r.execOne(ctx, "category", id, `DELETE FROM categories WHERE id = ?`, id)
}

// Transactions

const transactionColumns = `id, user_id, category_id, amount_cents, description, type, date_ms`

func (r *SQLiteRepository) scanTransaction(sc interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t      core.Transaction
		typ    string
		dateMs int64
	)
	if err := sc.Scan(&t.ID, &t.UserID, &t.CategoryID, &t.Amount.Cents, &t.Description, &typ, &dateMs); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	t.Date = time.UnixMilli(dateMs).In(r.loc)
	return t, nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, where string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where+` ORDER BY date_ms DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := r.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `user_id = ?`, userID)
}

func (r *SQLiteRepository) ListTransactionsByPeriod(ctx context.Context, userID string, period core.Period) ([]core.Transaction, error) {
	start, end := period.Bounds(r.loc)
	return r.queryTransactions(ctx, `user_id = ? AND date_ms BETWEEN ? AND ?`,
		userID, start.UnixMilli(), end.UnixMilli())
}

func (r *SQLiteRepository) ListTransactionsByCategory(ctx context.Context, userID, categoryID string) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `user_id = ? AND category_id = ?`, userID, categoryID)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := r.scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, notFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	t.ID = newID(t.ID)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.CategoryID, t.Amount.Cents, t.Description, string(t.Type), t.Date.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Transaction saved to SQLite",
		log.FieldTransactionID, t.ID,
		log.FieldUserID, t.UserID,
		log.FieldAmountCents, t.Amount.Cents,
		"type", string(t.Type))
	return t.ID, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return r.execOne(ctx, "transaction", t.ID,
		`UPDATE transactions SET user_id = ?, category_id = ?, amount_cents = ?, description = ?, type = ?, date_ms = ? WHERE id = ?`,
		t.UserID, t.CategoryID, t.Amount.Cents, t.Description, string(t.Type), t.Date.UnixMilli(), t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	return r.execOne(ctx, "transaction", id, `DELETE FROM transactions WHERE id = ?`, id)
}

// Budgets

const budgetColumns = `id, user_id, category_id, amount_cents, month, year`

func scanBudget(sc interface{ Scan(...any) error }) (core.Budget, error) {
	var b core.Budget
	err := sc.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.Amount.Cents, &b.Month, &b.Year)
	return b, err
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = ? ORDER BY year, month, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, notFound("budget", id)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	b.ID = newID(b.ID)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (`+budgetColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.CategoryID, b.Amount.Cents, b.Month, b.Year)
	if err != nil {
		return "", fmt.Errorf("create budget: %w", err)
	}
	return b.ID, nil
}

func (r *SQLiteRepository) UpdateBudget(ctx context.Context, b core.Budget) error {
	return r.execOne(ctx, "budget", b.ID,
		`UPDATE budgets SET user_id = ?, category_id = ?, amount_cents = ?, month = ?, year = ? WHERE id = ?`,
		b.UserID, b.CategoryID, b.Amount.Cents, b.Month, b.Year, b.ID)
}

func (r *SQLiteRepository) DeleteBudget(ctx context.Context, id string) error {
	return r.execOne(ctx, "budget", id, `DELETE FROM budgets WHERE id = ?`, id)
}

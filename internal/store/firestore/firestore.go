// Package firestore is the Cloud Firestore implementation of ports.Store.
//
// Collections: users, categories, transactions, budgets. Documents are keyed
// by entity ID and carry the owner in a userId field. Amounts are stored as
// floating point currency units and converted to cents on read.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
)

const (
	usersCollection        = "users"
	categoriesCollection   = "categories"
	transactionsCollection = "transactions"
	budgetsCollection      = "budgets"
)

type Config struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

type Store struct {
	client *firestore.Client
	loc    *time.Location
	logger *log.Logger
}

func New(ctx context.Context, cfg Config, loc *time.Location, logger *log.Logger) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{client: client, loc: loc, logger: logger.WithComponent(log.ComponentStorage)}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

type userDoc struct {
	DefaultCurrency string    `firestore:"defaultCurrency"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

type categoryDoc struct {
	Name   string `firestore:"name"`
	Icon   string `firestore:"icon"`
	Color  int64  `firestore:"color"`
	UserID string `firestore:"userId"`
}

type transactionDoc struct {
	Amount      float64   `firestore:"amount"`
	Description string    `firestore:"description"`
	CategoryID  string    `firestore:"categoryId"`
	Date        time.Time `firestore:"date"`
	Type        string    `firestore:"type"`
	UserID      string    `firestore:"userId"`
}

type budgetDoc struct {
	CategoryID string  `firestore:"categoryId"`
	Amount     float64 `firestore:"amount"`
	Month      int64   `firestore:"month"`
	Year       int64   `firestore:"year"`
	UserID     string  `firestore:"userId"`
}

// toUnits converts cents to the stored floating point amount.
func toUnits(m core.Money) float64 {
	f, _ := decimal.New(m.Cents, -2).Float64()
	return f
}

// toMoney rounds a stored amount half away from zero to cents.
func toMoney(units float64) core.Money {
	return core.Money{Cents: decimal.NewFromFloat(units).Shift(2).Round(0).IntPart()}
}

func fromCategoryDoc(id string, d categoryDoc) core.Category {
	return core.Category{ID: id, Name: d.Name, Icon: d.Icon, Color: int(d.Color), UserID: d.UserID}
}

func toCategoryDoc(c core.Category) categoryDoc {
	return categoryDoc{Name: c.Name, Icon: c.Icon, Color: int64(c.Color), UserID: c.UserID}
}

func (s *Store) fromTransactionDoc(id string, d transactionDoc) core.Transaction {
	return core.Transaction{
		ID:          id,
		Amount:      toMoney(d.Amount),
		Description: d.Description,
		CategoryID:  d.CategoryID,
		Date:        d.Date.In(s.loc),
		Type:        core.TransactionType(d.Type),
		UserID:      d.UserID,
	}
}

func toTransactionDoc(t core.Transaction) transactionDoc {
	return transactionDoc{
		Amount:      toUnits(t.Amount),
		Description: t.Description,
		CategoryID:  t.CategoryID,
		Date:        t.Date,
		Type:        string(t.Type),
		UserID:      t.UserID,
	}
}

func fromBudgetDoc(id string, d budgetDoc) core.Budget {
	return core.Budget{
		ID:         id,
		CategoryID: d.CategoryID,
		Amount:     toMoney(d.Amount),
		Month:      int(d.Month),
		Year:       int(d.Year),
		UserID:     d.UserID,
	}
}

func toBudgetDoc(b core.Budget) budgetDoc {
	return budgetDoc{
		CategoryID: b.CategoryID,
		Amount:     toUnits(b.Amount),
		Month:      int64(b.Month),
		Year:       int64(b.Year),
		UserID:     b.UserID,
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func wrap(op, kind, id string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return fmt.Errorf("%s %s %s: %w", op, kind, id, err)
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// getDoc loads one document into dst.
func (s *Store) getDoc(ctx context.Context, collection, id string, dst any) error {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return err
	}
	return snap.DataTo(dst)
}

// replace overwrites an existing document; a missing document is NotFound.
func (s *Store) replace(ctx context.Context, collection, id string, data any) error {
	ref := s.client.Collection(collection).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, data)
	})
}

func (s *Store) remove(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	return err
}

// Users

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	var d userDoc
	if err := s.getDoc(ctx, usersCollection, id, &d); err != nil {
		return core.User{}, wrap("get", "user", id, err)
	}
	return core.User{ID: id, DefaultCurrency: d.DefaultCurrency, CreatedAt: d.CreatedAt}, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return core.ErrEmptyUserID
	}
	_, err := s.client.Collection(usersCollection).Doc(u.ID).Create(ctx, userDoc{
		DefaultCurrency: u.DefaultCurrency,
		CreatedAt:       u.CreatedAt,
	})
	if err != nil {
		return wrap("create", "user", u.ID, err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u core.User) error {
	_, err := s.client.Collection(usersCollection).Doc(u.ID).Update(ctx, []firestore.Update{
		{Path: "defaultCurrency", Value: u.DefaultCurrency},
	})
	if err != nil {
		return wrap("update", "user", u.ID, err)
	}
	return nil
}

// Categories

func (s *Store) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	docs, err := s.client.Collection(categoriesCollection).
		Where("userId", "==", userID).
		OrderBy("name", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(docs))
	for _, doc := range docs {
		var d categoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode category %s: %w", doc.Ref.ID, err)
		}
		out = append(out, fromCategoryDoc(doc.Ref.ID, d))
	}
	return out, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (core.Category, error) {
	var d categoryDoc
	if err := s.getDoc(ctx, categoriesCollection, id, &d); err != nil {
		return core.Category{}, wrap("get", "category", id, err)
	}
	return fromCategoryDoc(id, d), nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	c.ID = newID(c.ID)
	if _, err := s.client.Collection(categoriesCollection).Doc(c.ID).Create(ctx, toCategoryDoc(c)); err != nil {
		return "", wrap("create", "category", c.ID, err)
	}
	return c.ID, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := s.replace(ctx, categoriesCollection, c.ID, toCategoryDoc(c)); err != nil {
		return wrap("update", "category", c.ID, err)
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	if err := s.remove(ctx, categoriesCollection, id); err != nil {
		return wrap("delete", "category", id, err)
	}
	return nil
}

// Transactions

func (s *Store) queryTransactions(ctx context.Context, q firestore.Query) ([]core.Transaction, error) {
	docs, err := q.OrderBy("date", firestore.Desc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(docs))
	for _, doc := range docs {
		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode transaction %s: %w", doc.Ref.ID, err)
		}
		out = append(out, s.fromTransactionDoc(doc.Ref.ID, d))
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return s.queryTransactions(ctx, s.client.Collection(transactionsCollection).Where("userId", "==", userID))
}

func (s *Store) ListTransactionsByPeriod(ctx context.Context, userID string, period core.Period) ([]core.Transaction, error) {
	start, end := period.Bounds(s.loc)
	return s.queryTransactions(ctx, s.client.Collection(transactionsCollection).
		Where("userId", "==", userID).
		Where("date", ">=", start).
		Where("date", "<=", end))
}

func (s *Store) ListTransactionsByCategory(ctx context.Context, userID, categoryID string) ([]core.Transaction, error) {
	return s.queryTransactions(ctx, s.client.Collection(transactionsCollection).
		Where("userId", "==", userID).
		Where("categoryId", "==", categoryID))
}

func (s *Store) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var d transactionDoc
	if err := s.getDoc(ctx, transactionsCollection, id, &d); err != nil {
		return core.Transaction{}, wrap("get", "transaction", id, err)
	}
	return s.fromTransactionDoc(id, d), nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	t.ID = newID(t.ID)
	if _, err := s.client.Collection(transactionsCollection).Doc(t.ID).Create(ctx, toTransactionDoc(t)); err != nil {
		return "", wrap("create", "transaction", t.ID, err)
	}
	s.logger.DebugContext(ctx, "Transaction saved to Firestore", log.FieldTransactionID, t.ID, log.FieldUserID, t.UserID)
	return t.ID, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := s.replace(ctx, transactionsCollection, t.ID, toTransactionDoc(t)); err != nil {
		return wrap("update", "transaction", t.ID, err)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.remove(ctx, transactionsCollection, id); err != nil {
		return wrap("delete", "transaction", id, err)
	}
	return nil
}

// Budgets

func (s *Store) ListBudgets(ctx context.Context, userID string) ([]core.Budget, error) {
	docs, err := s.client.Collection(budgetsCollection).Where("userId", "==", userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	out := make([]core.Budget, 0, len(docs))
	for _, doc := range docs {
		var d budgetDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode budget %s: %w", doc.Ref.ID, err)
		}
		out = append(out, fromBudgetDoc(doc.Ref.ID, d))
	}
	return out, nil
}

func (s *Store) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var d budgetDoc
	if err := s.getDoc(ctx, budgetsCollection, id, &d); err != nil {
		return core.Budget{}, wrap("get", "budget", id, err)
	}
	return fromBudgetDoc(id, d), nil
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	b.ID = newID(b.ID)
	if _, err := s.client.Collection(budgetsCollection).Doc(b.ID).Create(ctx, toBudgetDoc(b)); err != nil {
		return "", wrap("create", "budget", b.ID, err)
	}
	return b.ID, nil
}

func (s *Store) UpdateBudget(ctx context.Context, b core.Budget) error {
	if err := s.replace(ctx, budgetsCollection, b.ID, toBudgetDoc(b)); err != nil {
		return wrap("update", "budget", b.ID, err)
	}
	return nil
}

func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	if err := s.remove(ctx, budgetsCollection, id); err != nil {
		return wrap("delete", "budget", id, err)
	}
	return nil
}

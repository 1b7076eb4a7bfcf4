// Package memory is an in-process implementation of ports.Store.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"budgetsmart/internal/core"
)

type Store struct {
	mu           sync.RWMutex
	users        map[string]core.User
	categories   []core.Category
	transactions []core.Transaction
	budgets      []core.Budget
	loc          *time.Location
}

func New() *Store {
	return &Store{users: make(map[string]core.User), loc: time.UTC}
}

// WithLocation sets the zone used to match transactions to periods.
func (s *Store) WithLocation(loc *time.Location) *Store {
	if loc != nil {
		s.loc = loc
	}
	return s
}

// SeedCategories creates one category per non-blank, non-comment line of
// path for userID. A missing file seeds nothing.
func (s *Store) SeedCategories(ctx context.Context, path, userID string) (int, error) {
	names := readLines(path)
	for i, name := range names {
		if _, err := s.CreateCategory(ctx, core.Category{Name: name, UserID: userID, Color: i}); err != nil {
			return i, fmt.Errorf("seed category %q: %w", name, err)
		}
	}
	return len(names), nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// Users

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return core.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UpdateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, core.ErrNotFound)
	}
	s.users[u.ID] = u
	return nil
}

// Categories

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategoryByID(_ context.Context, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = newID(c.ID)
	s.categories = append(s.categories, c)
	return c.ID, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == c.ID {
			s.categories[i] = c
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == id {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
}

// Transactions

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	return s.filterTransactions(func(t core.Transaction) bool { return t.UserID == userID }), nil
}

func (s *Store) ListTransactionsByPeriod(_ context.Context, userID string, period core.Period) ([]core.Transaction, error) {
	w := period.Window(s.loc)
	return s.filterTransactions(func(t core.Transaction) bool {
		return t.UserID == userID && w.Contains(t.Date)
	}), nil
}

func (s *Store) ListTransactionsByCategory(_ context.Context, userID, categoryID string) ([]core.Transaction, error) {
	return s.filterTransactions(func(t core.Transaction) bool {
		return t.UserID == userID && t.CategoryID == categoryID
	}), nil
}

// filterTransactions returns matching transactions, newest first.
func (s *Store) filterTransactions(keep func(core.Transaction) bool) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = newID(t.ID)
	s.transactions = append(s.transactions, t)
	return t.ID, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == t.ID {
			s.transactions[i] = t
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

// Budgets

func (s *Store) ListBudgets(_ context.Context, userID string) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetBudget(_ context.Context, id string) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.budgets {
		if b.ID == id {
			return b, nil
		}
	}
	return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = newID(b.ID)
	s.budgets = append(s.budgets, b)
	return b.ID, nil
}

func (s *Store) UpdateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.budgets {
		if s.budgets[i].ID == b.ID {
			s.budgets[i] = b
			return nil
		}
	}
	return fmt.Errorf("budget %s: %w", b.ID, core.ErrNotFound)
}

func (s *Store) DeleteBudget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.budgets {
		if s.budgets[i].ID == id {
			s.budgets = append(s.budgets[:i], s.budgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	seen := map[string]struct{}{}
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

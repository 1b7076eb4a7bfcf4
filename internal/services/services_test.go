package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"budgetsmart/internal/amqp"
	"budgetsmart/internal/core"
	"budgetsmart/internal/store/memory"
)

func newCategory(t *testing.T, store *memory.Store, userID, name string) string {
	t.Helper()
	id, err := store.CreateCategory(context.Background(), core.Category{Name: name, UserID: userID})
	if err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	return id
}

func TestBudgetService_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBudgetService(store, store, nil, nil)
	food := newCategory(t, store, "u1", "Food")
	period := core.Period{Month: 2, Year: 2024}

	first, err := svc.Save(ctx, "u1", food, core.Money{Cents: 10000}, period)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := svc.Save(ctx, "u1", food, core.Money{Cents: 25000}, period)
	if err != nil {
		t.Fatalf("Save again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected update of %s, got new budget %s", first.ID, second.ID)
	}

	budgets, _ := store.ListBudgets(ctx, "u1")
	if len(budgets) != 1 {
		t.Fatalf("expected 1 budget, got %d", len(budgets))
	}
	if budgets[0].Amount.Cents != 25000 {
		t.Errorf("expected amount 25000, got %d", budgets[0].Amount.Cents)
	}

	if _, err := svc.Save(ctx, "u1", food, core.Money{Cents: 100}, period.Shift(1)); err != nil {
		t.Fatalf("Save next month: %v", err)
	}
	budgets, _ = store.ListBudgets(ctx, "u1")
	if len(budgets) != 2 {
		t.Errorf("expected 2 budgets across months, got %d", len(budgets))
	}
}

func TestBudgetService_SaveConcurrent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBudgetService(store, store, nil, nil)
	food := newCategory(t, store, "u1", "Food")
	period := core.Period{Month: 0, Year: 2024}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(cents int64) {
			defer wg.Done()
			if _, err := svc.Save(ctx, "u1", food, core.Money{Cents: cents}, period); err != nil {
				t.Errorf("Save: %v", err)
			}
		}(int64(i * 100))
	}
	wg.Wait()

	budgets, _ := store.ListBudgets(ctx, "u1")
	if len(budgets) != 1 {
		t.Errorf("expected a single budget after concurrent saves, got %d", len(budgets))
	}
}

func TestBudgetService_SaveValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBudgetService(store, store, nil, nil)
	food := newCategory(t, store, "u1", "Food")
	other := newCategory(t, store, "u2", "Rent")

	tests := []struct {
		name       string
		categoryID string
		amount     int64
		period     core.Period
		want       error
	}{
		{"negative amount", food, -1, core.Period{Month: 1, Year: 2024}, core.ErrInvalidAmount},
		{"bad month", food, 100, core.Period{Month: 12, Year: 2024}, core.ErrInvalidMonth},
		{"missing category", "ghost", 100, core.Period{Month: 1, Year: 2024}, core.ErrUnknownCategory},
		{"foreign category", other, 100, core.Period{Month: 1, Year: 2024}, core.ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(ctx, "u1", tt.categoryID, core.Money{Cents: tt.amount}, tt.period)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestBudgetService_DeleteOwnership(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewBudgetService(store, store, nil, nil)
	food := newCategory(t, store, "u1", "Food")
	b, err := svc.Save(ctx, "u1", food, core.Money{Cents: 100}, core.Period{Month: 3, Year: 2024})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := svc.Delete(ctx, "u2", b.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign user, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetBudget(ctx, b.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("budget should be gone, got %v", err)
	}
}

type recordingPublisher struct {
	err   error
	calls []string
}

func (p *recordingPublisher) PublishCategoryDeleted(_ context.Context, userID, categoryID string) error {
	p.calls = append(p.calls, userID+"/"+categoryID)
	return p.err
}

func TestCategoryService_Delete(t *testing.T) {
	period := core.Period{Month: 5, Year: 2024}

	tests := []struct {
		name           string
		publisher      *recordingPublisher
		wantBudgetsDel bool
		wantPublished  int
	}{
		{"no publisher cleans inline", nil, true, 0},
		{"publisher defers cleanup", &recordingPublisher{}, false, 1},
		{"publish failure cleans inline", &recordingPublisher{err: errors.New("broker down")}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New()
			budgets := NewBudgetService(store, store, nil, nil)
			var events EventPublisher
			if tt.publisher != nil {
				events = tt.publisher
			}
			svc := NewCategoryService(store, store, budgets, events, nil)

			food := newCategory(t, store, "u1", "Food")
			if _, err := budgets.Save(ctx, "u1", food, core.Money{Cents: 100}, period); err != nil {
				t.Fatalf("Save: %v", err)
			}

			if err := svc.Delete(ctx, "u1", food); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.GetCategoryByID(ctx, food); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("category should be gone, got %v", err)
			}

			left, _ := store.ListBudgets(ctx, "u1")
			if tt.wantBudgetsDel && len(left) != 0 {
				t.Errorf("expected budgets removed, %d left", len(left))
			}
			if !tt.wantBudgetsDel && len(left) != 1 {
				t.Errorf("expected budget kept for the worker, %d left", len(left))
			}
			if tt.publisher != nil && len(tt.publisher.calls) != tt.wantPublished {
				t.Errorf("expected %d publishes, got %d", tt.wantPublished, len(tt.publisher.calls))
			}
		})
	}
}

// brokenBudgetStore fails every budget deletion.
type brokenBudgetStore struct {
	*memory.Store
}

func (brokenBudgetStore) DeleteBudget(context.Context, string) error {
	return errors.New("budget store unavailable")
}

func TestCategoryService_DeleteWithFailedCleanup(t *testing.T) {
	period := core.Period{Month: 5, Year: 2024}

	tests := []struct {
		name      string
		publisher *recordingPublisher
	}{
		{"no publisher", nil},
		{"publish and inline cleanup both fail", &recordingPublisher{err: errors.New("broker down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New()
			budgets := NewBudgetService(brokenBudgetStore{store}, store, nil, nil)
			var events EventPublisher
			if tt.publisher != nil {
				events = tt.publisher
			}
			svc := NewCategoryService(store, store, budgets, events, nil)

			food := newCategory(t, store, "u1", "Food")
			if _, err := budgets.Save(ctx, "u1", food, core.Money{Cents: 100}, period); err != nil {
				t.Fatalf("Save: %v", err)
			}

			if err := svc.Delete(ctx, "u1", food); err != nil {
				t.Fatalf("Delete should succeed once the category is gone, got %v", err)
			}
			if _, err := store.GetCategoryByID(ctx, food); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("category should be gone, got %v", err)
			}
			if left, _ := store.ListBudgets(ctx, "u1"); len(left) != 1 {
				t.Errorf("expected the budget left for a later cleanup, %d left", len(left))
			}
			// A retried cleanup with a healthy store removes it.
			n, err := NewBudgetService(store, store, nil, nil).DeleteForCategory(ctx, "u1", food)
			if err != nil || n != 1 {
				t.Errorf("retried cleanup: removed %d, err %v", n, err)
			}
		})
	}
}

func TestCategoryService_DeleteInUse(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewCategoryService(store, store, nil, nil, nil)
	food := newCategory(t, store, "u1", "Food")
	_, err := store.CreateTransaction(ctx, core.Transaction{
		Amount:     core.Money{Cents: 500},
		CategoryID: food,
		Date:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Type:       core.Expense,
		UserID:     "u1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := svc.Delete(ctx, "u1", food); !errors.Is(err, core.ErrCategoryInUse) {
		t.Errorf("expected ErrCategoryInUse, got %v", err)
	}
	if err := svc.Delete(ctx, "u2", food); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign user, got %v", err)
	}
}

func TestCategoryService_CreateUpdate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewCategoryService(store, store, nil, nil, nil)

	if _, err := svc.Create(ctx, core.Category{Name: "  ", UserID: "u1"}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}

	c, err := svc.Create(ctx, core.Category{Name: "Food", Icon: "🍔", Color: 2, UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.Name = "Groceries"
	if _, err := svc.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := store.GetCategoryByID(ctx, c.ID)
	if got.Name != "Groceries" {
		t.Errorf("expected renamed category, got %q", got.Name)
	}

	c.UserID = "u2"
	if _, err := svc.Update(ctx, c); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign user, got %v", err)
	}
}

func TestTransactionService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewTransactionService(store, store, nil)
	food := newCategory(t, store, "u1", "Food")
	foreign := newCategory(t, store, "u2", "Rent")

	base := core.Transaction{
		Amount:      core.Money{Cents: 1250},
		Description: "Lunch",
		CategoryID:  food,
		Date:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:        core.Expense,
		UserID:      "u1",
	}

	created, err := svc.Create(ctx, base)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bad := base
	bad.CategoryID = foreign
	if _, err := svc.Create(ctx, bad); !errors.Is(err, core.ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}

	if _, err := svc.Get(ctx, "u2", created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign user, got %v", err)
	}

	created.Amount = core.Money{Cents: 990}
	if _, err := svc.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := svc.Get(ctx, "u1", created.ID)
	if got.Amount.Cents != 990 {
		t.Errorf("expected 990 cents, got %d", got.Amount.Cents)
	}

	if err := svc.Delete(ctx, "u1", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, "u1", created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUserService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewUserService(store, nil)

	u, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.DefaultCurrency != core.DefaultCurrency {
		t.Errorf("expected default currency %s, got %s", core.DefaultCurrency, u.DefaultCurrency)
	}

	u, err = svc.SetCurrency(ctx, "u1", "eur")
	if err != nil {
		t.Fatalf("SetCurrency: %v", err)
	}
	if u.DefaultCurrency != "EUR" {
		t.Errorf("expected EUR, got %s", u.DefaultCurrency)
	}
	again, _ := svc.Get(ctx, "u1")
	if again.DefaultCurrency != "EUR" {
		t.Errorf("expected stored EUR, got %s", again.DefaultCurrency)
	}

	if _, err := svc.SetCurrency(ctx, "u1", "XYZW"); !errors.Is(err, core.ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := svc.Get(ctx, ""); !errors.Is(err, core.ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

type countingUsers struct {
	*memory.Store
	gets int
}

func (c *countingUsers) GetUser(ctx context.Context, id string) (core.User, error) {
	c.gets++
	return c.Store.GetUser(ctx, id)
}

func TestUserService_CachesProfiles(t *testing.T) {
	ctx := context.Background()
	users := &countingUsers{Store: memory.New()}
	if err := users.CreateUser(ctx, core.User{ID: "u1", DefaultCurrency: "GBP"}); err != nil {
		t.Fatal(err)
	}
	svc := NewUserService(users, nil)

	for i := 0; i < 3; i++ {
		u, err := svc.Get(ctx, "u1")
		if err != nil || u.DefaultCurrency != "GBP" {
			t.Fatalf("Get: %+v %v", u, err)
		}
	}
	if users.gets != 1 {
		t.Errorf("expected one store read, got %d", users.gets)
	}

	if _, err := svc.SetCurrency(ctx, "u1", "ILS"); err != nil {
		t.Fatal(err)
	}
	if u, _ := svc.Get(ctx, "u1"); u.DefaultCurrency != "ILS" {
		t.Errorf("cache should hold the updated profile, got %s", u.DefaultCurrency)
	}
	if users.gets != 1 {
		t.Errorf("update should not force a re-read, got %d reads", users.gets)
	}
}

type fakeConsumer struct {
	messages []*amqp.CategoryDeletedMessage
	handled  chan error
}

func (c *fakeConsumer) ConsumeCategoryDeleted(ctx context.Context, handler amqp.CategoryDeletedHandler) error {
	for _, m := range c.messages {
		c.handled <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestCleanupProcessor_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	budgets := NewBudgetService(store, store, nil, nil)
	food := newCategory(t, store, "u1", "Food")
	if _, err := budgets.Save(ctx, "u1", food, core.Money{Cents: 100}, core.Period{Month: 0, Year: 2024}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	consumer := &fakeConsumer{
		messages: []*amqp.CategoryDeletedMessage{amqp.NewCategoryDeletedMessage("u1", food)},
		handled:  make(chan error, 1),
	}
	p := NewCleanupProcessor(consumer, budgets, nil)

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	select {
	case err := <-consumer.handled:
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("message was not handled")
	}

	left, _ := store.ListBudgets(ctx, "u1")
	if len(left) != 0 {
		t.Errorf("expected budgets removed, %d left", len(left))
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
}

func TestCleanupProcessor_StopNotRunning(t *testing.T) {
	p := NewCleanupProcessor(&fakeConsumer{}, nil, nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

type failingConsumer struct {
	err error
}

func (c failingConsumer) ConsumeCategoryDeleted(context.Context, amqp.CategoryDeletedHandler) error {
	return c.err
}

func TestCleanupProcessor_ConsumerExit(t *testing.T) {
	store := memory.New()
	budgets := NewBudgetService(store, store, nil, nil)

	tests := []struct {
		name string
		err  error
	}{
		{"consumer error", errors.New("queue not found")},
		{"consumer returned nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewCleanupProcessor(failingConsumer{err: tt.err}, budgets, nil)
			if err := p.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			select {
			case <-p.Done():
			case <-time.After(time.Second):
				t.Fatal("Done was not closed after the consumer exited")
			}
			if p.IsRunning() {
				t.Error("processor should not report running after its consumer exited")
			}
			if p.Err() == nil {
				t.Error("expected the exit reason")
			}
			if tt.err != nil && !errors.Is(p.Err(), tt.err) {
				t.Errorf("expected %v, got %v", tt.err, p.Err())
			}
			if err := p.Start(context.Background()); err != nil {
				t.Errorf("restart after exit: %v", err)
			}
		})
	}
}

func TestCleanupProcessor_StopClearsErr(t *testing.T) {
	store := memory.New()
	p := NewCleanupProcessor(&fakeConsumer{handled: make(chan error, 1)}, NewBudgetService(store, store, nil, nil), nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	<-p.Done()
	if p.Err() != nil {
		t.Errorf("a stopped processor should have no exit error, got %v", p.Err())
	}
}

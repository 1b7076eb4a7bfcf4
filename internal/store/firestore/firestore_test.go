package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"budgetsmart/internal/core"
	"budgetsmart/internal/ports"
)

var _ ports.Store = (*Store)(nil)

func TestAmountConversion(t *testing.T) {
	cases := []struct {
		units float64
		cents int64
	}{
		{0, 0},
		{40, 4000},
		{19.99, 1999},
		{0.1 + 0.2, 30},
		{1234.565, 123457},
		{100.004, 10000},
	}
	for _, tc := range cases {
		if got := toMoney(tc.units); got.Cents != tc.cents {
			t.Errorf("toMoney(%v) = %d, want %d", tc.units, got.Cents, tc.cents)
		}
	}

	for _, cents := range []int64{0, 1, 1999, 4000, 123456789} {
		m := core.Money{Cents: cents}
		if got := toMoney(toUnits(m)); got != m {
			t.Errorf("round trip of %d cents gave %d", cents, got.Cents)
		}
	}
}

func TestDocumentMapping(t *testing.T) {
	s := &Store{loc: time.UTC}
	date := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

	tx := core.Transaction{
		ID: "t1", Amount: core.Money{Cents: 4050}, Description: "lunch",
		CategoryID: "c1", Date: date, Type: core.Expense, UserID: "u1",
	}
	got := s.fromTransactionDoc("t1", toTransactionDoc(tx))
	if !got.Date.Equal(date) {
		t.Fatalf("date mapping: got %v, want %v", got.Date, date)
	}
	got.Date = tx.Date
	if got != tx {
		t.Fatalf("transaction mapping: got %+v, want %+v", got, tx)
	}

	b := core.Budget{ID: "b1", CategoryID: "c1", Amount: core.Money{Cents: 10000}, Month: 5, Year: 2024, UserID: "u1"}
	if got := fromBudgetDoc("b1", toBudgetDoc(b)); got != b {
		t.Fatalf("budget mapping: got %+v, want %+v", got, b)
	}

	c := core.Category{ID: "c1", Name: "Food", Icon: "🍔", Color: 7, UserID: "u1"}
	if got := fromCategoryDoc("c1", toCategoryDoc(c)); got != c {
		t.Fatalf("category mapping: got %+v, want %+v", got, c)
	}
}

func TestWrapNotFound(t *testing.T) {
	err := wrap("get", "budget", "b1", status.Error(codes.NotFound, "no document"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = wrap("get", "budget", "b1", status.Error(codes.Unavailable, "down"))
	if errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unavailable must not map to ErrNotFound")
	}
}

func TestNewRequiresProject(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil, nil); err == nil {
		t.Fatalf("expected error without project id")
	}
}

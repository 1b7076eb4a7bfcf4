package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	User struct {
		ID              string
		DefaultCurrency string // ISO 4217 code, display only
		CreatedAt       time.Time
	}

	Category struct {
		ID     string
		Name   string
		Icon   string // emoji or icon token
		Color  int    // palette index
		UserID string
	}

	Transaction struct {
		ID          string
		Amount      Money
		Description string
		CategoryID  string
		Date        time.Time
		Type        TransactionType
		UserID      string
	}

	// Budget is the spending cap of one category for one month.
	// At most one Budget exists per (UserID, CategoryID, Month, Year).
	Budget struct {
		ID         string
		CategoryID string
		Amount     Money
		Month      int // 0-11
		Year       int
		UserID     string
	}
)

const DefaultCurrency = "USD"

var (
	ErrInvalidMonth         = errors.New("invalid month")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrEmptyName            = errors.New("empty category name")
	ErrEmptyUserID          = errors.New("empty user id")
	ErrEmptyCategoryID      = errors.New("empty category id")
	ErrZeroDate             = errors.New("date cannot be zero")
	ErrNotFound             = errors.New("not found")
	ErrUnknownCategory      = errors.New("unknown category")
	ErrCategoryInUse        = errors.New("category is used by transactions")
	ErrCustomWindowRequired = errors.New("custom period requires an explicit window")
	ErrInvalidWindow        = errors.New("window start is after its end")
	ErrInvalidCurrency      = errors.New("invalid currency code")
	ErrNameTooLong          = fmt.Errorf("category name too long (max %d characters)", MaxCategoryNameLen)
	ErrDescriptionTooLong   = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLen)
)

// Text limits, counted in characters.
const (
	MaxCategoryNameLen = 100
	MaxDescriptionLen  = 200
)

// Valid reports whether t is one of the two known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(c.Name) > MaxCategoryNameLen {
		return ErrNameTooLong
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategoryID
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return ErrEmptyCategoryID
	}
	if b.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return b.Period().Validate()
}

// Period returns the month the budget applies to.
func (b Budget) Period() Period {
	return Period{Month: b.Month, Year: b.Year}
}

// Matches reports whether the budget belongs to p.
func (b Budget) Matches(p Period) bool {
	return b.Month == p.Month && b.Year == p.Year
}

package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

type (
	// CategoryID identifies a category. Values compare as strings.
	CategoryID string

	TransactionType string

	// Action is the kind of ledger mutation that produced an event.
	Action string

	Money struct {
		Cents int64
	}

	Category struct {
		ID    CategoryID
		Name  string
		Icon  string
		Type  TransactionType
		Color string
	}

	Transaction struct {
		ID         int64
		CategoryID CategoryID
		// AccountID is zero for transactions not booked on an account.
		AccountID int64
		Amount    Money
		Type      TransactionType
		Note      string
		Date      time.Time
	}

	// Account holds money. Balance is Initial plus income minus expense of
	// the account's transactions.
	Account struct {
		ID      int64
		Name    string
		Icon    string
		Initial Money
		Balance Money
	}

	// Budget is a per-category, per-period spending limit.
	Budget struct {
		CategoryID CategoryID
		Period     Period
		Limit      Money
	}

	// MonthTotals summarises the ledger for a period.
	MonthTotals struct {
		Income  Money
		Expense Money
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidYear     = errors.New("invalid year")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidAction   = errors.New("invalid action")
	ErrEmptyName       = errors.New("empty name")
	ErrNegativeLimit   = errors.New("budget limit cannot be negative")
	ErrInvalidDate     = errors.New("invalid date")
	ErrTooLong         = errors.New("value too long")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrInUse           = errors.New("still referenced")
)

// DefaultAccountIcon is used when an account is created without one.
const DefaultAccountIcon = "🐖"

// ParseCategoryID trims and validates a raw category identifier.
func ParseCategoryID(s string) (CategoryID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidCategory
	}
	return CategoryID(s), nil
}

func (id CategoryID) String() string {
	return string(id)
}

// ParseTransactionType is case-insensitive.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case Income, Expense:
		return t, nil
	default:
		return "", ErrInvalidType
	}
}

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAdd, ActionEdit, ActionDelete:
		return a, nil
	default:
		return "", ErrInvalidAction
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Balance is income minus expense.
func (t MonthTotals) Balance() Money {
	return Money{Cents: t.Income.Cents - t.Expense.Cents}
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 50 {
		return fmt.Errorf("%w: name exceeds 50 characters", ErrTooLong)
	}
	if c.Type != Income && c.Type != Expense {
		return ErrInvalidType
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if len(a.Name) > 50 {
		return fmt.Errorf("%w: name exceeds 50 characters", ErrTooLong)
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.CategoryID == "" {
		return ErrInvalidCategory
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Type != Income && t.Type != Expense {
		return ErrInvalidType
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(t.Note) > 255 {
		return fmt.Errorf("%w: note exceeds 255 characters", ErrTooLong)
	}
	return nil
}

// Period returns the month the transaction is booked in.
func (t Transaction) Period() Period {
	return CurrentPeriod(t.Date)
}

func (b Budget) Validate() error {
	if b.CategoryID == "" {
		return ErrInvalidCategory
	}
	if b.Limit.IsNegative() {
		return ErrNegativeLimit
	}
	return b.Period.Validate()
}

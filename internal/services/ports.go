package services

import (
	"context"

	"budgetbee/internal/amqp"
	"budgetbee/internal/core"
	"budgetbee/internal/storage"
)

// Ledger is the persistence the services need. *storage.SQLiteRepository
// implements it.
type Ledger interface {
	ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error)
	GetCategory(ctx context.Context, id core.CategoryID) (core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) error
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategory(ctx context.Context, id core.CategoryID) error

	ListAccounts(ctx context.Context) ([]core.Account, error)
	GetAccount(ctx context.Context, id int64) (core.Account, error)
	CreateAccount(ctx context.Context, a core.Account) (core.Account, error)
	UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
	DeleteAccount(ctx context.Context, id int64) ([]core.Transaction, error)

	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ListTransactions(ctx context.Context, p core.Period) ([]core.Transaction, error)
	MonthTotals(ctx context.Context, p core.Period) (core.MonthTotals, error)

	Spent(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, error)
	BudgetLimit(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, error)
	UpsertBudget(ctx context.Context, b core.Budget) error
	ListBudgets(ctx context.Context, p core.Period) ([]storage.BudgetRow, error)
}

// EventPublisher fans committed transaction changes out to watchers.
type EventPublisher interface {
	PublishTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetbee/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// periodRange returns the [from, to) date bounds of p as stored strings.
func periodRange(p core.Period) (string, string) {
	return p.Start().Format(dateLayout), p.End().Format(dateLayout)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, typ core.TransactionType) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, string(typ))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, len(rows))
	for i, c := range rows {
		out[i] = toCoreCategory(c)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id core.CategoryID) (core.Category, error) {
	c, err := r.queries.GetCategory(ctx, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return toCoreCategory(c), nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	err := r.queries.CreateCategory(ctx, Category{
		ID:    string(c.ID),
		Name:  c.Name,
		Icon:  c.Icon,
		Type:  string(c.Type),
		Color: c.Color,
	})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "category_id", c.ID, "name", c.Name, "type", c.Type)
	return nil
}

// UpdateCategory changes name, icon and color. The type is fixed once a
// category exists.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	n, err := r.queries.UpdateCategory(ctx, Category{ID: string(c.ID), Name: c.Name, Icon: c.Icon, Color: c.Color})
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

// DeleteCategory removes a category and its budgets. Categories that still
// have transactions are kept and core.ErrInUse is returned.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id core.CategoryID) error {
	return r.inTx(ctx, func(q *Queries) error {
		used, err := q.CountTransactionsForCategory(ctx, string(id))
		if err != nil {
			return fmt.Errorf("count category transactions: %w", err)
		}
		if used > 0 {
			return fmt.Errorf("category %s has %d transactions: %w", id, used, core.ErrInUse)
		}
		if err := q.DeleteBudgetsForCategory(ctx, string(id)); err != nil {
			return fmt.Errorf("delete category budgets: %w", err)
		}
		n, err := q.DeleteCategory(ctx, string(id))
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("category %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.queries.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	out := make([]core.Account, len(rows))
	for i, a := range rows {
		out[i] = toCoreAccount(a)
	}
	return out, nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	a, err := r.queries.GetAccount(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return toCoreAccount(a), nil
}

// CreateAccount stores a with its balance set to the initial amount.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	id, err := r.queries.CreateAccount(ctx, Account{Name: a.Name, Icon: a.Icon, InitialCents: a.Initial.Cents})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	a.ID = id
	a.Balance = a.Initial
	slog.InfoContext(ctx, "Account created", "account_id", a.ID, "name", a.Name)
	return a, nil
}

// UpdateAccount changes name, icon and initial amount and recomputes the
// balance.
func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	var updated core.Account
	err := r.inTx(ctx, func(q *Queries) error {
		n, err := q.UpdateAccount(ctx, Account{ID: a.ID, Name: a.Name, Icon: a.Icon, InitialCents: a.Initial.Cents})
		if err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("account %d: %w", a.ID, ErrNotFound)
		}
		if err := q.RecalcAccountBalance(ctx, a.ID); err != nil {
			return fmt.Errorf("recalculate balance: %w", err)
		}
		row, err := q.GetAccount(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		updated = toCoreAccount(row)
		return nil
	})
	return updated, err
}

// DeleteAccount removes the account together with its transactions and
// returns the transactions that were removed.
func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id int64) ([]core.Transaction, error) {
	var removed []core.Transaction
	err := r.inTx(ctx, func(q *Queries) error {
		if _, err := q.GetAccount(ctx, id); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("account %d: %w", id, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("get account: %w", err)
		}
		rows, err := q.ListTransactionsForAccount(ctx, id)
		if err != nil {
			return fmt.Errorf("list account transactions: %w", err)
		}
		for _, row := range rows {
			t, err := toCoreTransaction(row)
			if err != nil {
				return err
			}
			removed = append(removed, t)
		}
		if err := q.DeleteTransactionsForAccount(ctx, id); err != nil {
			return fmt.Errorf("delete account transactions: %w", err)
		}
		if _, err := q.DeleteAccount(ctx, id); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Account deleted", "account_id", id, "transactions", len(removed))
	return removed, nil
}

// recalcAccounts refreshes the balance of every non-zero account id.
func recalcAccounts(ctx context.Context, q *Queries, ids ...int64) error {
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if err := q.RecalcAccountBalance(ctx, id); err != nil {
			return fmt.Errorf("recalculate balance of account %d: %w", id, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	err := r.inTx(ctx, func(q *Queries) error {
		id, err := q.CreateTransaction(ctx, fromCoreTransaction(t))
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		t.ID = id
		return recalcAccounts(ctx, q, t.AccountID)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"transaction_id", t.ID,
		"category_id", t.CategoryID,
		"amount_cents", t.Amount.Cents,
		"type", t.Type,
		"date", t.Date.Format(dateLayout))

	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return toCoreTransaction(row)
}

// UpdateTransaction overwrites t and returns the previous version, so callers
// can refresh both the old and the new category.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	var prev core.Transaction
	err := r.inTx(ctx, func(q *Queries) error {
		row, err := q.GetTransaction(ctx, t.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", t.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if prev, err = toCoreTransaction(row); err != nil {
			return err
		}
		if _, err := q.UpdateTransaction(ctx, fromCoreTransaction(t)); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return recalcAccounts(ctx, q, prev.AccountID, t.AccountID)
	})
	return prev, err
}

// DeleteTransaction removes the transaction and returns what was deleted.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var deleted core.Transaction
	err := r.inTx(ctx, func(q *Queries) error {
		row, err := q.GetTransaction(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if deleted, err = toCoreTransaction(row); err != nil {
			return err
		}
		if _, err := q.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return recalcAccounts(ctx, q, deleted.AccountID)
	})
	return deleted, err
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	from, to := periodRange(p)
	rows, err := r.queries.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *SQLiteRepository) MonthTotals(ctx context.Context, p core.Period) (core.MonthTotals, error) {
	from, to := periodRange(p)
	income, expense, err := r.queries.SumByTypeBetween(ctx, from, to)
	if err != nil {
		return core.MonthTotals{}, fmt.Errorf("sum transactions: %w", err)
	}
	return core.MonthTotals{
		Income:  core.Money{Cents: income},
		Expense: core.Money{Cents: expense},
	}, nil
}

// Spent returns the expense total of a category in p.
func (r *SQLiteRepository) Spent(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, error) {
	from, to := periodRange(p)
	total, err := r.queries.SumExpenseForCategory(ctx, string(id), from, to)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum category expenses: %w", err)
	}
	return core.Money{Cents: total}, nil
}

// BudgetLimit returns the limit for id in p, zero when none was set.
func (r *SQLiteRepository) BudgetLimit(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, error) {
	limit, err := r.queries.GetBudgetLimit(ctx, string(id), int64(p.Month), int64(p.Year))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("get budget: %w", err)
	}
	return core.Money{Cents: limit}, nil
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) error {
	err := r.queries.UpsertBudget(ctx, string(b.CategoryID), int64(b.Period.Month), int64(b.Period.Year), b.Limit.Cents)
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget saved",
		"category_id", b.CategoryID,
		"period", b.Period.String(),
		"limit_cents", b.Limit.Cents)
	return nil
}

// BudgetRow is one expense category with its limit and spent total.
type BudgetRow struct {
	Category core.Category
	Limit    core.Money
	Spent    core.Money
}

// ListBudgets returns every expense category with its figures for p.
func (r *SQLiteRepository) ListBudgets(ctx context.Context, p core.Period) ([]BudgetRow, error) {
	from, to := periodRange(p)
	rows, err := r.queries.ListBudgetFigures(ctx, int64(p.Month), int64(p.Year), from, to)
	if err != nil {
		return nil, fmt.Errorf("list budget figures: %w", err)
	}
	out := make([]BudgetRow, len(rows))
	for i, f := range rows {
		out[i] = BudgetRow{
			Category: core.Category{ID: core.CategoryID(f.CategoryID), Name: f.Name, Icon: f.Icon, Type: core.Expense},
			Limit:    core.Money{Cents: f.LimitCents},
			Spent:    core.Money{Cents: f.SpentCents},
		}
	}
	return out, nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toCoreCategory(c Category) core.Category {
	return core.Category{
		ID:    core.CategoryID(c.ID),
		Name:  c.Name,
		Icon:  c.Icon,
		Type:  core.TransactionType(c.Type),
		Color: c.Color,
	}
}

func toCoreAccount(a Account) core.Account {
	return core.Account{
		ID:      a.ID,
		Name:    a.Name,
		Icon:    a.Icon,
		Initial: core.Money{Cents: a.InitialCents},
		Balance: core.Money{Cents: a.BalanceCents},
	}
}

func fromCoreTransaction(t core.Transaction) Transaction {
	return Transaction{
		ID:          t.ID,
		CategoryID:  string(t.CategoryID),
		AccountID:   sql.NullInt64{Int64: t.AccountID, Valid: t.AccountID != 0},
		AmountCents: t.Amount.Cents,
		Type:        string(t.Type),
		Note:        t.Note,
		Date:        t.Date.Format(dateLayout),
	}
}

func toCoreTransaction(t Transaction) (core.Transaction, error) {
	date, err := time.Parse(dateLayout, t.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction %d date %q: %w", t.ID, t.Date, err)
	}
	return core.Transaction{
		ID:         t.ID,
		CategoryID: core.CategoryID(t.CategoryID),
		AccountID:  t.AccountID.Int64,
		Amount:     core.Money{Cents: t.AmountCents},
		Type:       core.TransactionType(t.Type),
		Note:       t.Note,
		Date:       date,
	}, nil
}

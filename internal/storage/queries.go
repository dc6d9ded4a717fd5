package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so queries can run inside a
// transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Rows

type Category struct {
	ID    string
	Name  string
	Icon  string
	Type  string
	Color string
}

type Transaction struct {
	ID          int64
	CategoryID  string
	AccountID   sql.NullInt64
	AmountCents int64
	Type        string
	Note        string
	Date        string
}

type Account struct {
	ID           int64
	Name         string
	Icon         string
	InitialCents int64
	BalanceCents int64
}

type BudgetFigure struct {
	CategoryID string
	Name       string
	Icon       string
	LimitCents int64
	SpentCents int64
}

// Categories

const listCategories = `SELECT id, name, icon, type, color FROM categories
WHERE (?1 = '' OR type = ?1)
ORDER BY type DESC, name`

func (q *Queries) ListCategories(ctx context.Context, typ string) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, typ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Type, &c.Color); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const getCategory = `SELECT id, name, icon, type, color FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id string) (Category, error) {
	var c Category
	err := q.db.QueryRowContext(ctx, getCategory, id).Scan(&c.ID, &c.Name, &c.Icon, &c.Type, &c.Color)
	return c, err
}

const createCategory = `INSERT INTO categories (id, name, icon, type, color) VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, c Category) error {
	_, err := q.db.ExecContext(ctx, createCategory, c.ID, c.Name, c.Icon, c.Type, c.Color)
	return err
}

const updateCategory = `UPDATE categories SET name = ?, icon = ?, color = ? WHERE id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, c Category) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory, c.Name, c.Icon, c.Color, c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Accounts

const accountColumns = `id, name, icon, initial_cents, balance_cents`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Icon, &a.InitialCents, &a.BalanceCents)
	return a, err
}

const listAccounts = `SELECT ` + accountColumns + ` FROM accounts ORDER BY id`

func (q *Queries) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const getAccount = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(q.db.QueryRowContext(ctx, getAccount, id))
}

const createAccount = `INSERT INTO accounts (name, icon, initial_cents, balance_cents)
VALUES (?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateAccount(ctx context.Context, a Account) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createAccount, a.Name, a.Icon, a.InitialCents, a.InitialCents).Scan(&id)
	return id, err
}

const updateAccount = `UPDATE accounts SET name = ?, icon = ?, initial_cents = ? WHERE id = ?`

func (q *Queries) UpdateAccount(ctx context.Context, a Account) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateAccount, a.Name, a.Icon, a.InitialCents, a.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAccount = `DELETE FROM accounts WHERE id = ?`

func (q *Queries) DeleteAccount(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAccount, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// recalcAccountBalance derives the balance from the initial amount and the
// account's transactions.
const recalcAccountBalance = `UPDATE accounts
SET balance_cents = initial_cents + COALESCE((
    SELECT SUM(CASE WHEN t.type = 'income' THEN t.amount_cents ELSE -t.amount_cents END)
    FROM transactions t WHERE t.account_id = accounts.id), 0)
WHERE id = ?`

func (q *Queries) RecalcAccountBalance(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, recalcAccountBalance, id)
	return err
}

// Transactions

const transactionColumns = `id, category_id, account_id, amount_cents, type, note, date`

func scanTransaction(row interface{ Scan(...any) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.CategoryID, &t.AccountID, &t.AmountCents, &t.Type, &t.Note, &t.Date)
	return t, err
}

func collectTransactions(rows *sql.Rows, err error) ([]Transaction, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const createTransaction = `INSERT INTO transactions (category_id, account_id, amount_cents, type, note, date)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id`

func (q *Queries) CreateTransaction(ctx context.Context, t Transaction) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createTransaction, t.CategoryID, t.AccountID, t.AmountCents, t.Type, t.Note, t.Date).Scan(&id)
	return id, err
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const updateTransaction = `UPDATE transactions
SET category_id = ?, account_id = ?, amount_cents = ?, type = ?, note = ?, date = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateTransaction, t.CategoryID, t.AccountID, t.AmountCents, t.Type, t.Note, t.Date, t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactionsBetween = `SELECT ` + transactionColumns + ` FROM transactions
WHERE date >= ? AND date < ?
ORDER BY date DESC, id DESC`

func (q *Queries) ListTransactionsBetween(ctx context.Context, from, to string) ([]Transaction, error) {
	return collectTransactions(q.db.QueryContext(ctx, listTransactionsBetween, from, to))
}

const listTransactionsForAccount = `SELECT ` + transactionColumns + ` FROM transactions
WHERE account_id = ?
ORDER BY date, id`

func (q *Queries) ListTransactionsForAccount(ctx context.Context, accountID int64) ([]Transaction, error) {
	return collectTransactions(q.db.QueryContext(ctx, listTransactionsForAccount, accountID))
}

const deleteTransactionsForAccount = `DELETE FROM transactions WHERE account_id = ?`

func (q *Queries) DeleteTransactionsForAccount(ctx context.Context, accountID int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransactionsForAccount, accountID)
	return err
}

const countTransactionsForCategory = `SELECT COUNT(*) FROM transactions WHERE category_id = ?`

func (q *Queries) CountTransactionsForCategory(ctx context.Context, categoryID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactionsForCategory, categoryID).Scan(&n)
	return n, err
}

const sumByTypeBetween = `SELECT
    COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents END), 0),
    COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents END), 0)
FROM transactions
WHERE date >= ? AND date < ?`

func (q *Queries) SumByTypeBetween(ctx context.Context, from, to string) (income, expense int64, err error) {
	err = q.db.QueryRowContext(ctx, sumByTypeBetween, from, to).Scan(&income, &expense)
	return income, expense, err
}

const sumExpenseForCategory = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
WHERE category_id = ? AND type = 'expense' AND date >= ? AND date < ?`

func (q *Queries) SumExpenseForCategory(ctx context.Context, categoryID, from, to string) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumExpenseForCategory, categoryID, from, to).Scan(&total)
	return total, err
}

// Budgets

const deleteBudgetsForCategory = `DELETE FROM budgets WHERE category_id = ?`

func (q *Queries) DeleteBudgetsForCategory(ctx context.Context, categoryID string) error {
	_, err := q.db.ExecContext(ctx, deleteBudgetsForCategory, categoryID)
	return err
}

const getBudgetLimit = `SELECT limit_cents FROM budgets WHERE category_id = ? AND month = ? AND year = ?`

func (q *Queries) GetBudgetLimit(ctx context.Context, categoryID string, month, year int64) (int64, error) {
	var limit int64
	err := q.db.QueryRowContext(ctx, getBudgetLimit, categoryID, month, year).Scan(&limit)
	return limit, err
}

const upsertBudget = `INSERT INTO budgets (category_id, month, year, limit_cents)
VALUES (?, ?, ?, ?)
ON CONFLICT (category_id, month, year)
DO UPDATE SET limit_cents = excluded.limit_cents, updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertBudget(ctx context.Context, categoryID string, month, year, limitCents int64) error {
	_, err := q.db.ExecContext(ctx, upsertBudget, categoryID, month, year, limitCents)
	return err
}

const listBudgetFigures = `SELECT c.id, c.name, c.icon,
    COALESCE(b.limit_cents, 0),
    COALESCE((SELECT SUM(t.amount_cents) FROM transactions t
              WHERE t.category_id = c.id AND t.type = 'expense'
                AND t.date >= ?3 AND t.date < ?4), 0)
FROM categories c
LEFT JOIN budgets b ON b.category_id = c.id AND b.month = ?1 AND b.year = ?2
WHERE c.type = 'expense'
ORDER BY c.name`

func (q *Queries) ListBudgetFigures(ctx context.Context, month, year int64, from, to string) ([]BudgetFigure, error) {
	rows, err := q.db.QueryContext(ctx, listBudgetFigures, month, year, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetFigure
	for rows.Next() {
		var f BudgetFigure
		if err := rows.Scan(&f.CategoryID, &f.Name, &f.Icon, &f.LimitCents, &f.SpentCents); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

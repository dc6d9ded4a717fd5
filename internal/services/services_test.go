package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"budgetbee/internal/amqp"
	"budgetbee/internal/cache"
	"budgetbee/internal/core"
	"budgetbee/internal/storage"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.TransactionChangedMessage
	err  error
}

func (p *fakePublisher) PublishTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func newTestLedger(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

var march = core.Period{Month: 3, Year: 2025}

func expense(cat core.CategoryID, cents int64) core.Transaction {
	return core.Transaction{
		CategoryID: cat,
		Amount:     core.Money{Cents: cents},
		Type:       core.Expense,
		Date:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestTransactionServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	spent := cache.NewMemorySpentCache(32, time.Minute)
	pub := &fakePublisher{}
	txs := NewTransactionService(ledger, spent, pub, nil)
	budgets := NewBudgetService(ledger, spent, nil)

	if _, err := budgets.Save(ctx, core.Budget{CategoryID: "food", Period: march, Limit: core.Money{Cents: 50000}}); err != nil {
		t.Fatalf("Save budget: %v", err)
	}

	res, err := txs.Create(ctx, expense("food", 46000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Totals.Expense.Cents != 46000 || res.Category.Name != "Food" {
		t.Errorf("result = %+v", res)
	}

	fig, err := budgets.Figures(ctx, "food", march)
	if err != nil {
		t.Fatalf("Figures: %v", err)
	}
	if fig.Spent.Cents != 46000 || fig.Limit.Cents != 50000 {
		t.Errorf("figures = %+v", fig)
	}

	tx := res.Transaction
	tx.Amount = core.Money{Cents: 52000}
	if _, err := txs.Update(ctx, tx); err != nil {
		t.Fatalf("Update: %v", err)
	}
	// The cached total must have been invalidated by the edit.
	if fig, _ := budgets.Figures(ctx, "food", march); fig.Spent.Cents != 52000 {
		t.Errorf("spent after edit = %d, want 52000", fig.Spent.Cents)
	}

	if _, err := txs.Delete(ctx, tx.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if fig, _ := budgets.Figures(ctx, "food", march); fig.Spent.Cents != 0 {
		t.Errorf("spent after delete = %d, want 0", fig.Spent.Cents)
	}

	var actions []string
	for _, m := range pub.msgs {
		actions = append(actions, m.Action)
	}
	if len(actions) != 3 || actions[0] != "add" || actions[1] != "edit" || actions[2] != "delete" {
		t.Errorf("published actions = %v", actions)
	}
}

// gatedLedger pauses the first Spent call after it read the database.
type gatedLedger struct {
	*storage.SQLiteRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (g *gatedLedger) Spent(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, error) {
	m, err := g.SQLiteRepository.Spent(ctx, id, p)
	g.once.Do(func() {
		close(g.read)
		<-g.release
	})
	return m, err
}

func TestSpentLookupRacingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	ledger := &gatedLedger{
		SQLiteRepository: newTestLedger(t),
		read:             make(chan struct{}),
		release:          make(chan struct{}),
	}
	spent := cache.NewMemorySpentCache(32, time.Minute)
	txs := NewTransactionService(ledger, spent, nil, nil)
	budgets := NewBudgetService(ledger, spent, nil)

	done := make(chan BudgetFigures)
	go func() {
		fig, err := budgets.Figures(ctx, "food", march)
		if err != nil {
			t.Errorf("Figures: %v", err)
		}
		done <- fig
	}()

	<-ledger.read
	if _, err := txs.Create(ctx, expense("food", 46000)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	close(ledger.release)
	if fig := <-done; fig.Spent.Cents != 0 {
		t.Errorf("in-flight lookup = %d, want the pre-commit 0", fig.Spent.Cents)
	}

	fig, err := budgets.Figures(ctx, "food", march)
	if err != nil {
		t.Fatalf("Figures: %v", err)
	}
	if fig.Spent.Cents != 46000 {
		t.Errorf("spent after committed expense = %d, want 46000", fig.Spent.Cents)
	}
}

func TestTransactionServiceMovesCategory(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	txs := NewTransactionService(newTestLedger(t), nil, pub, nil)

	res, err := txs.Create(ctx, expense("food", 1000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	moved := res.Transaction
	moved.CategoryID = "bills"
	if _, err := txs.Update(ctx, moved); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(pub.msgs) != 3 {
		t.Fatalf("published %d messages, want add + two edits", len(pub.msgs))
	}
	if pub.msgs[1].CategoryID != "food" || pub.msgs[2].CategoryID != "bills" {
		t.Errorf("edit events for %s and %s, want food then bills", pub.msgs[1].CategoryID, pub.msgs[2].CategoryID)
	}
}

func TestTransactionServiceRejects(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	txs := NewTransactionService(newTestLedger(t), nil, pub, nil)

	tests := []struct {
		name    string
		tx      core.Transaction
		wantErr error
	}{
		{"zero amount", expense("food", 0), core.ErrInvalidAmount},
		{"unknown category", expense("nope", 100), storage.ErrNotFound},
		{"income into expense category", func() core.Transaction {
			tx := expense("food", 100)
			tx.Type = core.Income
			return tx
		}(), ErrCategoryTypeMismatch},
		{"unknown account", func() core.Transaction {
			tx := expense("food", 100)
			tx.AccountID = 99
			return tx
		}(), core.ErrInvalidAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := txs.Create(ctx, tt.tx); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(pub.msgs) != 0 {
		t.Errorf("rejected writes published %d events", len(pub.msgs))
	}

	if _, err := txs.Delete(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete(missing) = %v", err)
	}
}

func TestTransactionServicePublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	txs := NewTransactionService(newTestLedger(t), nil, pub, nil)

	if _, err := txs.Create(context.Background(), expense("food", 100)); err != nil {
		t.Errorf("Create failed because of the broker: %v", err)
	}
}

func TestBudgetServiceSave(t *testing.T) {
	ctx := context.Background()
	budgets := NewBudgetService(newTestLedger(t), nil, nil)

	tests := []struct {
		name    string
		budget  core.Budget
		wantErr error
	}{
		{"negative", core.Budget{CategoryID: "food", Period: march, Limit: core.Money{Cents: -1}}, core.ErrNegativeLimit},
		{"income category", core.Budget{CategoryID: "salary", Period: march, Limit: core.Money{Cents: 1}}, core.ErrInvalidCategory},
		{"bad month", core.Budget{CategoryID: "food", Period: core.Period{Month: 0, Year: 2025}}, core.ErrInvalidMonth},
		{"unknown category", core.Budget{CategoryID: "nope", Period: march}, storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := budgets.Save(ctx, tt.budget); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	fig, err := budgets.Save(ctx, core.Budget{CategoryID: "food", Period: march})
	if err != nil {
		t.Fatalf("zero limit rejected: %v", err)
	}
	if fig.Category.Icon != "🍔" {
		t.Errorf("figures = %+v", fig)
	}
}

func TestBudgetServiceSnapshot(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	budgets := NewBudgetService(ledger, nil, nil)
	if _, err := budgets.Save(ctx, core.Budget{CategoryID: "bills", Period: march, Limit: core.Money{Cents: 20000}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	snap, err := budgets.Snapshot(ctx, march)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 5 {
		t.Fatalf("snapshot has %d categories, want 5", len(snap))
	}
	for _, f := range snap {
		if f.Category.Type != core.Expense {
			t.Errorf("non-expense category %s in snapshot", f.Category.ID)
		}
		if f.Category.ID == "bills" && f.Limit.Cents != 20000 {
			t.Errorf("bills limit = %d", f.Limit.Cents)
		}
	}
}

func TestCategoryServiceCreate(t *testing.T) {
	ctx := context.Background()
	cats := NewCategoryService(newTestLedger(t))

	c, err := cats.Create(ctx, core.Category{Name: "  Pet Care ", Icon: "🐶", Type: core.Expense})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID != "pet-care" || c.Name != "Pet Care" {
		t.Errorf("category = %+v", c)
	}

	dup, err := cats.Create(ctx, core.Category{Name: "Pet care", Type: core.Expense})
	if err != nil {
		t.Fatalf("Create duplicate name: %v", err)
	}
	if dup.ID == c.ID {
		t.Error("duplicate slug reused")
	}

	if _, err := cats.Create(ctx, core.Category{Name: " ", Type: core.Expense}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("empty name err = %v", err)
	}
}

func TestCategoryServiceUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	cats := NewCategoryService(ledger)

	c, err := cats.Update(ctx, core.Category{ID: "food", Name: " Groceries "})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if c.Name != "Groceries" || c.Icon != "🍔" || c.Type != core.Expense {
		t.Errorf("category = %+v", c)
	}
	if _, err := cats.Update(ctx, core.Category{ID: "food", Name: "Food", Type: core.Income}); !errors.Is(err, ErrCategoryTypeChange) {
		t.Errorf("type change err = %v", err)
	}
	if _, err := cats.Update(ctx, core.Category{ID: "nope", Name: "Nope"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}

	if _, err := ledger.CreateTransaction(ctx, expense("food", 100)); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := cats.Delete(ctx, "food"); !errors.Is(err, core.ErrInUse) {
		t.Errorf("delete used category err = %v", err)
	}
	if err := cats.Delete(ctx, "bills"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestAccountServiceDeleteAnnouncesTransactions(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	spent := cache.NewMemorySpentCache(32, time.Minute)
	pub := &fakePublisher{}
	txs := NewTransactionService(ledger, spent, pub, nil)
	budgets := NewBudgetService(ledger, spent, nil)
	accounts := NewAccountService(ledger, txs)

	acc, err := accounts.Create(ctx, core.Account{Name: "  Wallet "})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if acc.Name != "Wallet" || acc.Icon != core.DefaultAccountIcon {
		t.Errorf("account = %+v", acc)
	}
	if _, err := accounts.Create(ctx, core.Account{Name: ""}); !errors.Is(err, core.ErrEmptyName) {
		t.Errorf("empty name err = %v", err)
	}

	tx := expense("food", 46000)
	tx.AccountID = acc.ID
	if _, err := txs.Create(ctx, tx); err != nil {
		t.Fatalf("Create transaction: %v", err)
	}
	if f, _ := budgets.Figures(ctx, "food", march); f.Spent.Cents != 46000 {
		t.Fatalf("spent = %d", f.Spent.Cents)
	}
	list, total, err := accounts.List(ctx)
	if err != nil || len(list) != 5 || total.Cents != -46000 {
		t.Fatalf("List = %d accounts, total %d, %v", len(list), total.Cents, err)
	}

	pub.msgs = nil
	n, err := accounts.Delete(ctx, acc.ID)
	if err != nil || n != 1 {
		t.Fatalf("Delete = %d, %v", n, err)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Action != string(core.ActionDelete) {
		t.Errorf("published = %+v", pub.msgs)
	}
	if f, _ := budgets.Figures(ctx, "food", march); f.Spent.Cents != 0 {
		t.Errorf("spent after account delete = %d, cached value survived", f.Spent.Cents)
	}
	if _, err := accounts.Delete(ctx, acc.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Food":            "food",
		"Other Income":    "other-income",
		"Café & Bar!":     "caf-bar",
		"  spaced  out  ": "spaced-out",
		"🎉":               "",
	}
	for in, want := range tests {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

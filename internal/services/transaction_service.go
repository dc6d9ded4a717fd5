package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetbee/internal/amqp"
	"budgetbee/internal/cache"
	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/storage"
)

var ErrCategoryTypeMismatch = errors.New("category does not match transaction type")

// TransactionResult is a committed mutation plus the refreshed totals of the
// transaction's period.
type TransactionResult struct {
	Transaction core.Transaction
	Category    core.Category
	Totals      core.MonthTotals
}

// TransactionService orchestrates ledger mutations across SQLite, the spent
// cache and AMQP. Events are published only after the write committed.
type TransactionService struct {
	ledger    Ledger
	spent     cache.SpentCache
	publisher EventPublisher
	logger    *slog.Logger
}

// NewTransactionService accepts a nil spent cache or publisher.
func NewTransactionService(ledger Ledger, spent cache.SpentCache, publisher EventPublisher, logger *slog.Logger) *TransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{
		ledger:    ledger,
		spent:     spent,
		publisher: publisher,
		logger:    logger.With(applog.FieldComponent, applog.ComponentBudget),
	}
}

func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (TransactionResult, error) {
	cat, err := s.checkTransaction(ctx, t)
	if err != nil {
		return TransactionResult{}, err
	}

	saved, err := s.ledger.CreateTransaction(ctx, t)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("save transaction: %w", err)
	}

	s.invalidate(ctx, saved)
	s.publish(ctx, saved, core.ActionAdd)

	return s.result(ctx, saved, cat)
}

func (s *TransactionService) Update(ctx context.Context, t core.Transaction) (TransactionResult, error) {
	cat, err := s.checkTransaction(ctx, t)
	if err != nil {
		return TransactionResult{}, err
	}

	prev, err := s.ledger.UpdateTransaction(ctx, t)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("update transaction: %w", err)
	}

	s.invalidate(ctx, prev)
	s.invalidate(ctx, t)
	// The old category lost the amount, announce it too.
	if prev.CategoryID != t.CategoryID || prev.Period() != t.Period() {
		s.publish(ctx, prev, core.ActionEdit)
	}
	s.publish(ctx, t, core.ActionEdit)

	return s.result(ctx, t, cat)
}

func (s *TransactionService) Delete(ctx context.Context, id int64) (TransactionResult, error) {
	deleted, err := s.ledger.DeleteTransaction(ctx, id)
	if err != nil {
		return TransactionResult{}, fmt.Errorf("delete transaction: %w", err)
	}

	s.invalidate(ctx, deleted)
	s.publish(ctx, deleted, core.ActionDelete)

	totals, err := s.ledger.MonthTotals(ctx, deleted.Period())
	if err != nil {
		return TransactionResult{}, err
	}
	return TransactionResult{Transaction: deleted, Totals: totals}, nil
}

func (s *TransactionService) List(ctx context.Context, p core.Period) ([]core.Transaction, core.MonthTotals, error) {
	txs, err := s.ledger.ListTransactions(ctx, p)
	if err != nil {
		return nil, core.MonthTotals{}, err
	}
	totals, err := s.ledger.MonthTotals(ctx, p)
	if err != nil {
		return nil, core.MonthTotals{}, err
	}
	return txs, totals, nil
}

func (s *TransactionService) checkTransaction(ctx context.Context, t core.Transaction) (core.Category, error) {
	if err := t.Validate(); err != nil {
		return core.Category{}, err
	}
	cat, err := s.ledger.GetCategory(ctx, t.CategoryID)
	if err != nil {
		return core.Category{}, err
	}
	if cat.Type != t.Type {
		return core.Category{}, fmt.Errorf("%w: %s is an %s category", ErrCategoryTypeMismatch, cat.Name, cat.Type)
	}
	if t.AccountID != 0 {
		if _, err := s.ledger.GetAccount(ctx, t.AccountID); errors.Is(err, storage.ErrNotFound) {
			return core.Category{}, fmt.Errorf("%w: account %d does not exist", core.ErrInvalidAccount, t.AccountID)
		} else if err != nil {
			return core.Category{}, err
		}
	}
	return cat, nil
}

func (s *TransactionService) result(ctx context.Context, t core.Transaction, cat core.Category) (TransactionResult, error) {
	totals, err := s.ledger.MonthTotals(ctx, t.Period())
	if err != nil {
		return TransactionResult{}, err
	}
	return TransactionResult{Transaction: t, Category: cat, Totals: totals}, nil
}

// announceRemoved treats transactions deleted in bulk like single deletes.
func (s *TransactionService) announceRemoved(ctx context.Context, removed []core.Transaction) {
	for _, t := range removed {
		s.invalidate(ctx, t)
		s.publish(ctx, t, core.ActionDelete)
	}
}

func (s *TransactionService) invalidate(ctx context.Context, t core.Transaction) {
	if s.spent == nil || t.Type != core.Expense {
		return
	}
	s.spent.Invalidate(ctx, t.CategoryID, t.Period())
}

func (s *TransactionService) publish(ctx context.Context, t core.Transaction, action core.Action) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping transaction event")
		return
	}
	msg := amqp.NewTransactionChangedMessage(t, action)
	if err := s.publisher.PublishTransactionChanged(ctx, msg); err != nil {
		// The write is committed; watchers catch up on their next resync.
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			applog.FieldTxID, t.ID,
			applog.FieldAction, string(action),
			applog.FieldError, err)
	}
}

package services

import (
	"context"
	"fmt"
	"log/slog"

	"budgetbee/internal/cache"
	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

// BudgetFigures is what the spent-lookup and save endpoints report.
type BudgetFigures struct {
	Category core.Category
	Spent    core.Money
	Limit    core.Money
}

// BudgetService answers spent lookups and persists limits.
type BudgetService struct {
	ledger Ledger
	spent  cache.SpentCache
	logger *slog.Logger
}

func NewBudgetService(ledger Ledger, spent cache.SpentCache, logger *slog.Logger) *BudgetService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetService{
		ledger: ledger,
		spent:  spent,
		logger: logger.With(applog.FieldComponent, applog.ComponentBudget),
	}
}

// Figures returns spent and limit of category id in p.
func (s *BudgetService) Figures(ctx context.Context, id core.CategoryID, p core.Period) (BudgetFigures, error) {
	if err := p.Validate(); err != nil {
		return BudgetFigures{}, err
	}
	cat, err := s.ledger.GetCategory(ctx, id)
	if err != nil {
		return BudgetFigures{}, err
	}
	spent, err := s.spentTotal(ctx, id, p)
	if err != nil {
		return BudgetFigures{}, err
	}
	limit, err := s.ledger.BudgetLimit(ctx, id, p)
	if err != nil {
		return BudgetFigures{}, err
	}
	return BudgetFigures{Category: cat, Spent: spent, Limit: limit}, nil
}

// Save sets the limit of b's category for b's period. Only expense
// categories carry budgets.
func (s *BudgetService) Save(ctx context.Context, b core.Budget) (BudgetFigures, error) {
	if err := b.Validate(); err != nil {
		return BudgetFigures{}, err
	}
	cat, err := s.ledger.GetCategory(ctx, b.CategoryID)
	if err != nil {
		return BudgetFigures{}, err
	}
	if cat.Type != core.Expense {
		return BudgetFigures{}, fmt.Errorf("%w: budgets apply to expense categories only", core.ErrInvalidCategory)
	}
	if err := s.ledger.UpsertBudget(ctx, b); err != nil {
		return BudgetFigures{}, err
	}

	spent, err := s.spentTotal(ctx, b.CategoryID, b.Period)
	if err != nil {
		return BudgetFigures{}, err
	}

	s.logger.InfoContext(ctx, "Budget limit updated",
		applog.FieldCategoryID, b.CategoryID.String(),
		applog.FieldPeriod, b.Period.String(),
		applog.FieldLimitCents, b.Limit.Cents,
		applog.FieldSpentCents, spent.Cents)

	return BudgetFigures{Category: cat, Spent: spent, Limit: b.Limit}, nil
}

// Snapshot lists every expense category with its figures for p.
func (s *BudgetService) Snapshot(ctx context.Context, p core.Period) ([]BudgetFigures, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListBudgets(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]BudgetFigures, len(rows))
	for i, r := range rows {
		out[i] = BudgetFigures{Category: r.Category, Spent: r.Spent, Limit: r.Limit}
	}
	return out, nil
}

// spentTotal reads through the spent cache. The generation is taken before
// the query so a total that a concurrent write made stale is not cached.
func (s *BudgetService) spentTotal(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, error) {
	if s.spent == nil {
		return s.ledger.Spent(ctx, id, p)
	}
	if m, ok := s.spent.Get(ctx, id, p); ok {
		return m, nil
	}
	gen := s.spent.Generation(ctx, id, p)
	m, err := s.ledger.Spent(ctx, id, p)
	if err != nil {
		return core.Money{}, err
	}
	s.spent.Set(ctx, id, p, m, gen)
	return m, nil
}

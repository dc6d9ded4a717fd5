// Package notify delivers budget alerts to the user and to logs.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

// Writer prints one line per alert, e.g.
//
//	[!] 03/2025 Budget limit reached for "Food" (Rs. 520.00 of Rs. 500.00)
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Notify(_ context.Context, a budget.Alert) error {
	marker := "[~]"
	if a.Level == budget.LevelFull {
		marker = "[!]"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "%s %s %s (%s of %s)\n",
		marker, a.Period, a.Message(), core.FormatMoney(a.Spent), core.FormatMoney(a.Limit))
	return err
}

// Logger records alerts as structured log lines.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(applog.FieldComponent, applog.ComponentNotify)}
}

func (n *Logger) Notify(ctx context.Context, a budget.Alert) error {
	n.logger.InfoContext(ctx, "Budget alert",
		applog.FieldCategoryID, a.CategoryID.String(),
		applog.FieldCategory, a.Name,
		applog.FieldLevel, a.Level.String(),
		applog.FieldPeriod, a.Period.String(),
		applog.FieldSpentCents, a.Spent.Cents,
		applog.FieldLimitCents, a.Limit.Cents,
		applog.FieldPercent, a.Percent)
	return nil
}

// Multi delivers each alert to every notifier in order. A failing notifier
// does not stop the others; the failures are joined.
type Multi []budget.Notifier

func (m Multi) Notify(ctx context.Context, a budget.Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

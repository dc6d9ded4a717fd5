// Package sheets mirrors budget alerts into an append-only log.
package sheets

import (
	"context"
	"time"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
)

// AlertRow is one line of the alert log.
type AlertRow struct {
	At         time.Time
	Period     core.Period
	CategoryID core.CategoryID
	Name       string
	Level      budget.Level
	Spent      core.Money
	Limit      core.Money
	Percent    int
}

func RowFromAlert(a budget.Alert, at time.Time) AlertRow {
	return AlertRow{
		At:         at,
		Period:     a.Period,
		CategoryID: a.CategoryID,
		Name:       a.Name,
		Level:      a.Level,
		Spent:      a.Spent,
		Limit:      a.Limit,
		Percent:    a.Percent,
	}
}

// Ports for outbound adapters.
type (
	AlertAppender interface {
		AppendAlert(ctx context.Context, row AlertRow) error
	}

	// AlertLister returns the logged alerts of one period, oldest first.
	AlertLister interface {
		ListAlerts(ctx context.Context, p core.Period) ([]AlertRow, error)
	}

	AlertLog interface {
		AlertAppender
		AlertLister
	}
)

// Sink records every delivered alert in an AlertAppender.
type Sink struct {
	appender AlertAppender
	now      func() time.Time
}

var _ budget.Notifier = (*Sink)(nil)

func NewSink(a AlertAppender) *Sink {
	return &Sink{appender: a, now: time.Now}
}

func (s *Sink) Notify(ctx context.Context, a budget.Alert) error {
	return s.appender.AppendAlert(ctx, RowFromAlert(a, s.now()))
}

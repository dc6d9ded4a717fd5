package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

// NavState is the Navigator's state.
type NavState int

const (
	Idle NavState = iota
	Navigating
)

func (s NavState) String() string {
	if s == Navigating {
		return "navigating"
	}
	return "idle"
}

var ErrNoActivePeriod = errors.New("no active period")

// Navigator owns the displayed period. Each GoTo supersedes the previous one;
// responses still in flight for an older period are discarded by the
// Aggregator's period check.
type Navigator struct {
	agg    *Aggregator
	loader SnapshotLoader
	logger *slog.Logger

	mu    sync.Mutex
	state NavState
	gen   uint64
}

// NewNavigator returns a Navigator driving agg. loader may be nil, in which
// case navigation resyncs the categories already known to the view.
func NewNavigator(agg *Aggregator, loader SnapshotLoader, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		agg:    agg,
		loader: loader,
		logger: logger.With(applog.FieldComponent, applog.ComponentNavigator),
	}
}

func (n *Navigator) State() NavState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Navigator) Active() core.Period {
	return n.agg.Active()
}

// GoTo activates p, clears the cache and resynchronises every category of
// the new period. The returned error joins the per-category failures.
func (n *Navigator) GoTo(ctx context.Context, p core.Period) error {
	return n.navigate(ctx, p, nil)
}

// navigate seeds the cache from initial when given, from the loader
// otherwise, then resyncs.
func (n *Navigator) navigate(ctx context.Context, p core.Period, initial Snapshot) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("navigate to %s: %w", p, err)
	}

	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.state = Navigating
	n.agg.activate(p)
	n.mu.Unlock()

	n.logger.InfoContext(ctx, "Navigating",
		applog.FieldOperation, applog.OpNavigate,
		applog.FieldPeriod, p.String())

	defer func() {
		n.mu.Lock()
		if n.gen == gen {
			n.state = Idle
		}
		n.mu.Unlock()
	}()

	switch {
	case initial != nil:
		n.agg.Seed(ctx, p, initial)
	case n.loader != nil:
		snap, err := n.loader.LoadSnapshot(ctx, p)
		if err != nil {
			n.logger.WarnContext(ctx, "Snapshot load failed, resyncing known categories",
				applog.FieldPeriod, p.String(),
				applog.FieldError, err)
		} else {
			n.agg.Seed(ctx, p, snap)
		}
	}

	if err := n.agg.ResyncAll(ctx, p); err != nil {
		return fmt.Errorf("resync %s: %w", p, err)
	}
	return nil
}

// Next moves to the month after the active one.
func (n *Navigator) Next(ctx context.Context) error {
	p := n.agg.Active()
	if p.IsZero() {
		return ErrNoActivePeriod
	}
	return n.GoTo(ctx, p.Next())
}

// Prev moves to the month before the active one.
func (n *Navigator) Prev(ctx context.Context) error {
	p := n.agg.Active()
	if p.IsZero() {
		return ErrNoActivePeriod
	}
	return n.GoTo(ctx, p.Prev())
}

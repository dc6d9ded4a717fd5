package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

// AggregatorConfig tunes the Aggregator.
type AggregatorConfig struct {
	// Concurrency bounds parallel lookups during ResyncAll (0 = unbounded).
	Concurrency int
	Logger      *slog.Logger
}

// Aggregator reconciles the Cache with the remote ledger. Every upsert it
// performs is followed by an alert evaluation.
type Aggregator struct {
	remote      Remote
	cache       *Cache
	alerts      *Deduplicator
	notifier    Notifier
	concurrency int
	logger      *slog.Logger

	// mu orders the active-period check with the cache write so a response
	// from a superseded period can never land after a newer activation.
	mu     sync.Mutex
	active core.Period
	known  map[core.CategoryID]struct{}
}

func NewAggregator(remote Remote, cache *Cache, alerts *Deduplicator, notifier Notifier, cfg AggregatorConfig) *Aggregator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		remote:      remote,
		cache:       cache,
		alerts:      alerts,
		notifier:    notifier,
		concurrency: cfg.Concurrency,
		logger:      logger.With(applog.FieldComponent, applog.ComponentAggregator),
		known:       make(map[core.CategoryID]struct{}),
	}
}

// Active returns the period the cache currently belongs to.
func (a *Aggregator) Active() core.Period {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// activate switches the active period and invalidates the whole cache.
func (a *Aggregator) activate(p core.Period) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = p
	a.cache.Clear()
}

// Categories lists the categories known to the current view.
func (a *Aggregator) Categories() []core.CategoryID {
	a.mu.Lock()
	ids := make([]core.CategoryID, 0, len(a.known))
	for id := range a.known {
		ids = append(ids, id)
	}
	a.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Track adds categories to the view without touching the cache.
func (a *Aggregator) Track(ids ...core.CategoryID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.known[id] = struct{}{}
	}
}

// Seed replaces the view's categories with the ones in snap and upserts
// their figures, provided p is still the active period. It returns the
// number of entries written.
func (a *Aggregator) Seed(ctx context.Context, p core.Period, snap Snapshot) int {
	a.mu.Lock()
	if p != a.active {
		a.mu.Unlock()
		a.logger.DebugContext(ctx, "Discarding snapshot of superseded period", applog.FieldPeriod, p.String())
		return 0
	}
	a.known = make(map[core.CategoryID]struct{}, len(snap))
	for id := range snap {
		a.known[id] = struct{}{}
	}
	a.mu.Unlock()

	ids := make([]core.CategoryID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	n := 0
	for _, id := range ids {
		if _, ok := a.apply(ctx, p, id, snap[id].Partial()); ok {
			n++
		}
	}
	return n
}

// ResyncAll refetches every known category for period p. Categories are
// independent: a failed lookup is logged and skipped, and the collected
// failures are returned once the batch is done.
func (a *Aggregator) ResyncAll(ctx context.Context, p core.Period) error {
	ids := a.Categories()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for _, id := range ids {
		g.Go(func() error {
			err := a.Refresh(ctx, id, p)
			if err != nil && !errors.Is(err, ErrSuperseded) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	a.logger.InfoContext(ctx, "Budget resync completed",
		applog.FieldPeriod, p.String(),
		"categories", len(ids),
		"failed", len(errs))

	return errors.Join(errs...)
}

// Refresh fetches the figures of one category for period p and upserts
// them. On failure the cached entry is left as it was.
func (a *Aggregator) Refresh(ctx context.Context, id core.CategoryID, p core.Period) error {
	fig, err := a.remote.FetchSpent(ctx, id, p)
	if err != nil {
		a.logger.WarnContext(ctx, "Budget spent lookup failed, keeping cached figures",
			applog.FieldCategoryID, id.String(),
			applog.FieldPeriod, p.String(),
			applog.FieldError, err)
		return fmt.Errorf("refresh category %s: %w", id, err)
	}
	if _, ok := a.apply(ctx, p, id, fig.Partial()); !ok {
		return ErrSuperseded
	}
	return nil
}

// OnTransactionEvent refreshes the category an expense event touched.
// Income events and categories outside the current view are ignored.
func (a *Aggregator) OnTransactionEvent(ctx context.Context, ev TransactionEvent) error {
	if ev.Type != core.Expense || ev.CategoryID == "" {
		return nil
	}

	a.mu.Lock()
	p := a.active
	_, tracked := a.known[ev.CategoryID]
	a.mu.Unlock()

	if p.IsZero() || !tracked {
		a.logger.DebugContext(ctx, "Ignoring transaction event",
			applog.FieldCategoryID, ev.CategoryID.String(),
			applog.FieldAction, string(ev.Action),
			"tracked", tracked)
		return nil
	}

	err := a.Refresh(ctx, ev.CategoryID, p)
	if errors.Is(err, ErrSuperseded) {
		return nil
	}
	return err
}

// SaveBudget persists a new limit for id in the active period. On failure
// the cache is not touched and the error is returned as is; a
// *ValidationError carries the server message.
func (a *Aggregator) SaveBudget(ctx context.Context, id core.CategoryID, limit core.Money) (Entry, error) {
	p := a.Active()
	if p.IsZero() {
		return Entry{}, errors.New("save budget: no active period")
	}

	fig, err := a.remote.SaveBudget(ctx, id, limit, p)
	if err != nil {
		a.logger.WarnContext(ctx, "Budget save failed",
			applog.FieldCategoryID, id.String(),
			applog.FieldPeriod, p.String(),
			applog.FieldLimitCents, limit.Cents,
			applog.FieldError, err)
		return Entry{}, err
	}

	a.Track(id)
	entry, ok := a.apply(ctx, p, id, fig.Partial())
	if !ok {
		return NewEntry(id, fig), nil
	}
	return entry, nil
}

// apply writes the partial when p is still active, then evaluates and
// delivers an alert for the resulting entry.
func (a *Aggregator) apply(ctx context.Context, p core.Period, id core.CategoryID, partial Partial) (Entry, bool) {
	a.mu.Lock()
	if p != a.active {
		a.mu.Unlock()
		a.logger.DebugContext(ctx, "Discarding response of superseded period",
			applog.FieldCategoryID, id.String(),
			applog.FieldPeriod, p.String())
		return Entry{}, false
	}
	entry := a.cache.Upsert(id, partial)
	alert, fire := a.alerts.Evaluate(entry)
	a.mu.Unlock()

	if fire {
		alert.Period = p
		a.deliver(ctx, alert)
	}
	return entry, true
}

func (a *Aggregator) deliver(ctx context.Context, alert Alert) {
	a.logger.InfoContext(ctx, "Budget alert",
		applog.FieldCategoryID, alert.CategoryID.String(),
		applog.FieldLevel, alert.Level.String(),
		applog.FieldPercent, alert.Percent,
		applog.FieldPeriod, alert.Period.String())

	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, alert); err != nil {
		a.logger.WarnContext(ctx, "Alert delivery failed",
			applog.FieldCategoryID, alert.CategoryID.String(),
			applog.FieldLevel, alert.Level.String(),
			applog.FieldError, err)
	}
}

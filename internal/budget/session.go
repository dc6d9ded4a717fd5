package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

// DefaultRefreshDelay is how long the session waits after a transaction
// event before refetching the category.
const DefaultRefreshDelay = 200 * time.Millisecond

// Options configures a Session.
type Options struct {
	Thresholds  Thresholds
	Concurrency int
	// RefreshDelay before reacting to an event. Negative disables the wait.
	RefreshDelay time.Duration
	Logger       *slog.Logger
	// Loader overrides the snapshot source; when nil and the remote
	// implements SnapshotLoader, the remote is used.
	Loader SnapshotLoader
}

// Session is one budget view: a cache, an alert set and the components that
// keep them current. It is constructed once and shared by reference.
type Session struct {
	bus   *EventBus
	cache *Cache
	dedup *Deduplicator
	agg   *Aggregator
	nav   *Navigator

	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	unsub   func()
	pending sync.WaitGroup
}

func NewSession(remote Remote, notifier Notifier, opts Options) (*Session, error) {
	if remote == nil {
		return nil, errors.New("remote is required")
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}
	if opts.RefreshDelay == 0 {
		opts.RefreshDelay = DefaultRefreshDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loader := opts.Loader
	if loader == nil {
		loader, _ = remote.(SnapshotLoader)
	}

	cache := NewCache()
	dedup := NewDeduplicator(opts.Thresholds)
	agg := NewAggregator(remote, cache, dedup, notifier, AggregatorConfig{
		Concurrency: opts.Concurrency,
		Logger:      logger,
	})

	return &Session{
		bus:    NewEventBus(),
		cache:  cache,
		dedup:  dedup,
		agg:    agg,
		nav:    NewNavigator(agg, loader, logger),
		delay:  opts.RefreshDelay,
		logger: logger.With(applog.FieldComponent, applog.ComponentBudget),
	}, nil
}

func (s *Session) Bus() *EventBus { return s.bus }
func (s *Session) Cache() *Cache { return s.cache }
func (s *Session) Aggregator() *Aggregator { return s.agg }
func (s *Session) Navigator() *Navigator { return s.nav }
func (s *Session) Alerts() *Deduplicator { return s.dedup }

// Start subscribes to the bus and loads period p. A non-nil initial
// snapshot seeds the cache before the first resync; otherwise the snapshot
// loader, if any, is asked for one.
func (s *Session) Start(ctx context.Context, p core.Period, initial Snapshot) error {
	s.mu.Lock()
	if s.unsub != nil {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.unsub = s.bus.Subscribe(s.onEvent)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Budget session started", applog.FieldPeriod, p.String())
	return s.nav.navigate(ctx, p, initial)
}

// Publish forwards ev to every bus subscriber.
func (s *Session) Publish(ctx context.Context, ev TransactionEvent) {
	s.bus.Publish(ctx, ev)
}

// Save persists a new limit for id in the active period.
func (s *Session) Save(ctx context.Context, id core.CategoryID, limit core.Money) (Entry, error) {
	return s.agg.SaveBudget(ctx, id, limit)
}

// onEvent schedules the refresh so Publish never waits on the network.
func (s *Session) onEvent(_ context.Context, ev TransactionEvent) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		if s.delay > 0 {
			t := time.NewTimer(s.delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}

		if err := s.agg.OnTransactionEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "Budget refresh after transaction failed",
				applog.FieldCategoryID, ev.CategoryID.String(),
				applog.FieldAction, string(ev.Action),
				applog.FieldError, err)
		}
	}()
}

// Wait blocks until every scheduled refresh finished.
func (s *Session) Wait() {
	s.pending.Wait()
}

// Close unsubscribes from the bus, cancels pending refreshes and waits for
// them to return.
func (s *Session) Close() {
	s.mu.Lock()
	unsub, cancel := s.unsub, s.cancel
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	s.pending.Wait()
}

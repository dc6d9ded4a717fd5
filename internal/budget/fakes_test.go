package budget

import (
	"context"
	"sync"

	"budgetbee/internal/core"
)

func rs(n int64) core.Money { return core.Money{Cents: n * 100} }

var (
	march = core.Period{Month: 3, Year: 2025}
	april = core.Period{Month: 4, Year: 2025}
)

// fakeRemote serves figures per period. A gate for a period blocks every
// lookup of that period until it is closed.
type fakeRemote struct {
	mu       sync.Mutex
	figures  map[core.Period]map[core.CategoryID]Figures
	fetchErr map[core.CategoryID]error
	saveErr  error
	gates    map[core.Period]chan struct{}
	entered  chan core.Period
	fetches  int
	saves    int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		figures:  make(map[core.Period]map[core.CategoryID]Figures),
		fetchErr: make(map[core.CategoryID]error),
		gates:    make(map[core.Period]chan struct{}),
	}
}

func (f *fakeRemote) set(p core.Period, id core.CategoryID, fig Figures) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.figures[p] == nil {
		f.figures[p] = make(map[core.CategoryID]Figures)
	}
	f.figures[p][id] = fig
}

func (f *fakeRemote) FetchSpent(ctx context.Context, id core.CategoryID, p core.Period) (Figures, error) {
	f.mu.Lock()
	gate := f.gates[p]
	entered := f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- p
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if err := f.fetchErr[id]; err != nil {
		return Figures{}, err
	}
	return f.figures[p][id], nil
}

func (f *fakeRemote) SaveBudget(ctx context.Context, id core.CategoryID, limit core.Money, p core.Period) (Figures, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return Figures{}, f.saveErr
	}
	if f.figures[p] == nil {
		f.figures[p] = make(map[core.CategoryID]Figures)
	}
	fig := f.figures[p][id]
	fig.Limit = limit
	f.figures[p][id] = fig
	return fig, nil
}

func (f *fakeRemote) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeLoader struct {
	snaps map[core.Period]Snapshot
	err   error
}

func (l *fakeLoader) LoadSnapshot(ctx context.Context, p core.Period) (Snapshot, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.snaps[p], nil
}

// recorder collects delivered alerts.
type recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recorder) Notify(ctx context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) levels() []Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Level, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Level
	}
	return out
}

func newTestAggregator(remote Remote, n Notifier) *Aggregator {
	return NewAggregator(remote, NewCache(), NewDeduplicator(DefaultThresholds()), n, AggregatorConfig{})
}

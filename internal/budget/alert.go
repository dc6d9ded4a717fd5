package budget

import (
	"context"
	"fmt"
	"sync"

	"budgetbee/internal/core"
)

// Level is the severity of a budget alert.
type Level int

const (
	LevelWarn Level = iota + 1
	LevelFull
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel is the inverse of Level.String.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "warn":
		return LevelWarn, nil
	case "full":
		return LevelFull, nil
	default:
		return 0, fmt.Errorf("unknown alert level %q", s)
	}
}

// AlertKey identifies one alert per category and level.
type AlertKey struct {
	CategoryID core.CategoryID
	Level      Level
}

// Alert is a threshold crossing that must be shown to the user.
type Alert struct {
	CategoryID core.CategoryID
	Name       string
	Level      Level
	Spent      core.Money
	Limit      core.Money
	Percent    int
	Period     core.Period
}

func (a Alert) Key() AlertKey {
	return AlertKey{CategoryID: a.CategoryID, Level: a.Level}
}

// Message is the user-facing text of the alert.
func (a Alert) Message() string {
	if a.Level == LevelFull {
		return fmt.Sprintf("Budget limit reached for %q", a.Name)
	}
	return fmt.Sprintf("%q budget is about to reach its limit", a.Name)
}

// Notifier delivers alerts. Implementations may block until the user
// acknowledged the notification.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// Thresholds are the warn and full percentages, compared against the
// unrounded spent/limit ratio.
type Thresholds struct {
	Warn int
	Full int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Warn: 90, Full: 100}
}

func (t Thresholds) Validate() error {
	if t.Warn <= 0 {
		return fmt.Errorf("invalid warn threshold %d: must be positive", t.Warn)
	}
	if t.Full < t.Warn {
		return fmt.Errorf("invalid full threshold %d: must be at least the warn threshold %d", t.Full, t.Warn)
	}
	return nil
}

// Deduplicator remembers which alerts were already shown for the current
// crossing of each category. The set lives for the session only.
type Deduplicator struct {
	mu         sync.Mutex
	thresholds Thresholds
	shown      map[AlertKey]struct{}
}

func NewDeduplicator(t Thresholds) *Deduplicator {
	return &Deduplicator{
		thresholds: t,
		shown:      make(map[AlertKey]struct{}),
	}
}

// Evaluate decides whether e requires a new alert and records it as shown.
// Dropping below the warn threshold re-arms both levels for the category.
func (d *Deduplicator) Evaluate(e Entry) (Alert, bool) {
	if e.Limit.Cents <= 0 {
		return Alert{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !reaches(e.Spent, e.Limit, d.thresholds.Warn) {
		delete(d.shown, AlertKey{CategoryID: e.CategoryID, Level: LevelWarn})
		delete(d.shown, AlertKey{CategoryID: e.CategoryID, Level: LevelFull})
		return Alert{}, false
	}

	level := LevelWarn
	if reaches(e.Spent, e.Limit, d.thresholds.Full) {
		level = LevelFull
	}
	key := AlertKey{CategoryID: e.CategoryID, Level: level}
	if _, ok := d.shown[key]; ok {
		return Alert{}, false
	}
	d.shown[key] = struct{}{}

	return Alert{
		CategoryID: e.CategoryID,
		Name:       e.Name,
		Level:      level,
		Spent:      e.Spent,
		Limit:      e.Limit,
		Percent:    e.Percent,
	}, true
}

// Shown reports whether key was already fired for the current crossing.
func (d *Deduplicator) Shown(key AlertKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.shown[key]
	return ok
}

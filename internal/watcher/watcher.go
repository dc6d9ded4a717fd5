// Package watcher runs one interactive budget view: it feeds ledger events
// from the broker into a budget session, follows the calendar month and
// executes the commands typed by the user.
package watcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetbee/internal/amqp"
	"budgetbee/internal/budget"
	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/sheets"
)

// DefaultFollowInterval is how often the calendar month is checked.
const DefaultFollowInterval = time.Minute

// ErrQuit is returned by Execute when the user asked to leave.
var ErrQuit = errors.New("quit")

// EventSource delivers TransactionChanged messages until ctx is done.
type EventSource interface {
	ConsumeTransactionChanged(ctx context.Context, handler amqp.Handler) error
}

type Config struct {
	Session *budget.Session
	// Source is optional; without it the view only changes on commands.
	Source EventSource
	// Alerts backs the "alerts" command; optional.
	Alerts sheets.AlertLister
	// Start is the first displayed period; zero means the current month.
	Start core.Period
	// Follow moves the view to the new month at rollover when the view
	// was showing the month that just ended.
	Follow         bool
	FollowInterval time.Duration
	In             io.Reader
	Out            io.Writer
	Logger         *slog.Logger
}

type Watcher struct {
	session  *budget.Session
	source   EventSource
	alerts   sheets.AlertLister
	start    core.Period
	follow   bool
	interval time.Duration
	in       io.Reader
	logger   *slog.Logger
	now      func() time.Time

	outMu sync.Mutex
	out   io.Writer
}

func New(cfg Config) (*Watcher, error) {
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	if !cfg.Start.IsZero() {
		if err := cfg.Start.Validate(); err != nil {
			return nil, fmt.Errorf("start period: %w", err)
		}
	}
	if cfg.FollowInterval <= 0 {
		cfg.FollowInterval = DefaultFollowInterval
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		session:  cfg.Session,
		source:   cfg.Source,
		alerts:   cfg.Alerts,
		start:    cfg.Start,
		follow:   cfg.Follow,
		interval: cfg.FollowInterval,
		in:       cfg.In,
		out:      cfg.Out,
		logger:   logger.With(applog.FieldComponent, applog.ComponentWatcher),
		now:      time.Now,
	}, nil
}

// Run starts the session and blocks until ctx is done, the input is
// exhausted, the user quits or the event source fails.
func (w *Watcher) Run(ctx context.Context, initial budget.Snapshot) error {
	p := w.start
	if p.IsZero() {
		p = core.CurrentPeriod(w.now())
	}
	if err := w.session.Start(ctx, p, initial); err != nil {
		if w.session.Navigator().Active().IsZero() {
			return fmt.Errorf("start session: %w", err)
		}
		w.logger.WarnContext(ctx, "Initial resync incomplete", applog.FieldError, err)
	}
	defer w.session.Close()

	w.printf("Watching budgets for %s. Type \"help\" for commands.\n", p)
	w.show()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if w.source != nil {
		g.Go(func() error {
			err := w.source.ConsumeTransactionChanged(gctx, w.HandleMessage)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consume transaction events: %w", err)
		})
	}
	if w.follow {
		g.Go(func() error {
			w.followCalendar(gctx, p)
			return nil
		})
	}
	if w.in != nil {
		g.Go(func() error {
			defer cancel()
			return w.repl(gctx)
		})
	}

	return g.Wait()
}

// HandleMessage republishes a broker message on the session's bus. Messages
// for another period than the displayed one cannot change the view and are
// dropped.
func (w *Watcher) HandleMessage(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	ev, err := eventFromMessage(msg)
	if err != nil {
		w.logger.WarnContext(ctx, "Dropping invalid transaction event",
			applog.FieldMessageID, msg.ID,
			applog.FieldError, err)
		return nil
	}
	if active := w.session.Navigator().Active(); msg.Period() != active {
		w.logger.DebugContext(ctx, "Ignoring event for another period",
			applog.FieldMessageID, msg.ID,
			applog.FieldPeriod, msg.Period().String())
		return nil
	}

	w.logger.DebugContext(ctx, "Transaction event received",
		applog.FieldOperation, applog.OpConsume,
		applog.FieldMessageID, msg.ID,
		applog.FieldCategoryID, ev.CategoryID.String(),
		applog.FieldAction, string(ev.Action))
	w.session.Publish(ctx, ev)
	return nil
}

func eventFromMessage(msg *amqp.TransactionChangedMessage) (budget.TransactionEvent, error) {
	if err := msg.Validate(); err != nil {
		return budget.TransactionEvent{}, err
	}
	// Validate already checked every field parses.
	id, _ := core.ParseCategoryID(msg.CategoryID)
	typ, _ := core.ParseTransactionType(msg.Type)
	action, _ := core.ParseAction(msg.Action)
	return budget.TransactionEvent{
		CategoryID: id,
		Amount:     core.Money{Cents: msg.AmountCents},
		Type:       typ,
		Action:     action,
	}, nil
}

// followCalendar checks the wall clock every interval and moves the view
// along when the month it was tracking ends.
func (w *Watcher) followCalendar(ctx context.Context, tracked core.Period) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracked = w.rollover(ctx, tracked)
		}
	}
}

// rollover navigates to the current month when the calendar moved past
// tracked and the view still shows tracked. It returns the new calendar month.
func (w *Watcher) rollover(ctx context.Context, tracked core.Period) core.Period {
	cur := core.CurrentPeriod(w.now())
	if cur == tracked {
		return tracked
	}
	if w.session.Navigator().Active() == tracked {
		w.logger.InfoContext(ctx, "Month rollover",
			applog.FieldOperation, applog.OpNavigate,
			applog.FieldPeriod, cur.String())
		if err := w.session.Navigator().GoTo(ctx, cur); err != nil {
			w.logger.WarnContext(ctx, "Resync after rollover incomplete", applog.FieldError, err)
		}
		w.printf("New month: %s\n", cur)
		w.show()
	}
	return cur
}

// repl reads commands line by line. The scanner runs in its own goroutine
// so a pending read does not hold up shutdown.
func (w *Watcher) repl(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(w.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read commands: %w", err)
					}
				default:
				}
				return nil
			}
			if err := w.Execute(ctx, line); errors.Is(err, ErrQuit) {
				return nil
			}
		}
	}
}

const helpText = `Commands:
  show                      list budgets of the displayed month
  next | prev               move one month forward or back
  goto MM/YYYY              jump to a month
  save <category> <amount>  set the budget of a category
  alerts                    list alerts logged for the displayed month
  help                      show this text
  quit                      leave
`

// Execute runs one command line. Failures are reported on the output;
// only ErrQuit is returned.
func (w *Watcher) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "show", "ls":
		w.show()
	case "next", "n":
		w.navigate(ctx, w.session.Navigator().Next)
	case "prev", "p":
		w.navigate(ctx, w.session.Navigator().Prev)
	case "goto", "g":
		if len(args) != 1 {
			w.printf("usage: goto MM/YYYY\n")
			return nil
		}
		p, err := core.ParsePeriod(args[0])
		if err != nil {
			w.printf("Invalid month or year: %s\n", args[0])
			return nil
		}
		w.navigate(ctx, func(ctx context.Context) error {
			return w.session.Navigator().GoTo(ctx, p)
		})
	case "save", "s":
		w.save(ctx, args)
	case "alerts", "a":
		w.listAlerts(ctx)
	case "help", "h", "?":
		w.printf("%s", helpText)
	case "quit", "exit", "q":
		return ErrQuit
	default:
		w.printf("Unknown command %q. Type \"help\" for commands.\n", cmd)
	}
	return nil
}

func (w *Watcher) navigate(ctx context.Context, move func(context.Context) error) {
	if err := move(ctx); err != nil {
		if errors.Is(err, budget.ErrNoActivePeriod) {
			w.printf("No month displayed yet.\n")
			return
		}
		w.logger.WarnContext(ctx, "Navigation resync incomplete", applog.FieldError, err)
		w.printf("Some budgets could not be refreshed.\n")
	}
	w.show()
}

func (w *Watcher) save(ctx context.Context, args []string) {
	if len(args) != 2 {
		w.printf("usage: save <category> <amount>\n")
		return
	}
	id, err := core.ParseCategoryID(args[0])
	if err != nil {
		w.printf("Invalid category: %s\n", args[0])
		return
	}
	limit, err := core.ParseAmount(args[1])
	if err != nil {
		w.printf("Budget amount must be a non-negative number\n")
		return
	}

	e, err := w.session.Save(ctx, id, limit)
	if err != nil {
		w.logger.WarnContext(ctx, "Budget save failed",
			applog.FieldOperation, applog.OpSave,
			applog.FieldCategoryID, id.String(),
			applog.FieldError, err)
		w.printf("%s\n", budget.UserMessage(err))
		return
	}
	w.printf("Budget for %s set to %s (%d%% used)\n", displayName(e), core.FormatMoney(e.Limit), e.Percent)
}

func (w *Watcher) listAlerts(ctx context.Context) {
	if w.alerts == nil {
		w.printf("No alert log configured.\n")
		return
	}
	p := w.session.Navigator().Active()
	rows, err := w.alerts.ListAlerts(ctx, p)
	if err != nil {
		w.logger.WarnContext(ctx, "Reading alert log failed", applog.FieldError, err)
		w.printf("Could not read the alert log.\n")
		return
	}
	if len(rows) == 0 {
		w.printf("No alerts for %s.\n", p)
		return
	}

	w.outMu.Lock()
	defer w.outMu.Unlock()
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s of %s\t%d%%\n",
			r.At.Local().Format("2006-01-02 15:04"), r.Level, r.Name,
			core.FormatMoney(r.Spent), core.FormatMoney(r.Limit), r.Percent)
	}
	tw.Flush()
}

// show prints the cached budgets of the displayed month.
func (w *Watcher) show() {
	nav := w.session.Navigator()
	entries := w.session.Cache().Entries()

	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, "Budgets %s\n", nav.Active())
	if len(entries) == 0 {
		fmt.Fprintln(w.out, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		marker := " "
		switch {
		case e.Exceeded:
			marker = "!"
		case w.session.Alerts().Shown(budget.AlertKey{CategoryID: e.CategoryID, Level: budget.LevelWarn}):
			marker = "~"
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s / %s\t%d%%\t%s left\n",
			marker, e.CategoryID, displayName(e),
			core.FormatMoney(e.Spent), core.FormatMoney(e.Limit), e.Percent,
			core.FormatMoney(e.Remaining()))
	}
	tw.Flush()
}

func displayName(e budget.Entry) string {
	name := e.Name
	if name == "" {
		name = e.CategoryID.String()
	}
	if e.Icon != "" {
		name = e.Icon + " " + name
	}
	return name
}

func (w *Watcher) printf(format string, args ...any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

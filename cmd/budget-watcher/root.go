package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"budgetbee/internal/amqp"
	"budgetbee/internal/budget"
	"budgetbee/internal/cli"
	"budgetbee/internal/config"
	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
	"budgetbee/internal/notify"
	"budgetbee/internal/remote"
	"budgetbee/internal/sheets"
	gsheet "budgetbee/internal/sheets/google"
	"budgetbee/internal/sheets/memory"
	"budgetbee/internal/watcher"
)

// memoryAlertRows bounds the in-process alert log.
const memoryAlertRows = 500

var (
	flagURL      string
	flagMonth    string
	flagNoFollow bool
	flagNoEvents bool
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "budget-watcher",
	Short: "Watch budgets of a budgetbee ledger",
	Long: "Keeps the budgets of one month in sync with a budgetbee server, " +
		"reacting to ledger changes and raising alerts when a category " +
		"approaches or reaches its limit.",
	SilenceUsage: true,
	RunE:         runWatch,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "budgetbee server URL (overrides BUDGETBEE_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagMonth, "month", "m", "", "month to show, MM/YYYY (default current)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.Flags().BoolVar(&flagNoFollow, "no-follow", false, "stay on the chosen month when the calendar month changes")
	rootCmd.Flags().BoolVar(&flagNoEvents, "no-events", false, "do not subscribe to ledger events")
}

// env is what every subcommand builds from configuration and flags.
type env struct {
	cfg    *config.Config
	logger *applog.Logger
	client *remote.Client
	start  core.Period
}

func setup() (*env, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if flagURL != "" {
		cfg.BudgetbeeURL = flagURL
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if err := cfg.ValidateWatcher(); err != nil {
		return nil, err
	}

	// Logs go to stderr so they do not interleave with the command output.
	logger := cli.SetupLogger(cfg.LogLevel, os.Stderr).WithComponent(applog.ComponentWatcher)

	var start core.Period
	if flagMonth != "" {
		p, err := core.ParsePeriod(flagMonth)
		if err != nil {
			return nil, fmt.Errorf("--month: %w", err)
		}
		start = p
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL: cfg.BudgetbeeURL,
		Timeout: cfg.RemoteTimeout,
		Logger:  logger.Slog(),
	})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, client: client, start: start}, nil
}

// alertLog returns the Google Sheets log when configured, the in-process
// one otherwise.
func (e *env) alertLog(ctx context.Context) sheets.AlertLog {
	if e.cfg.GoogleSpreadsheetID == "" {
		return memory.New(memoryAlertRows)
	}
	c, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID: e.cfg.GoogleSpreadsheetID,
		SheetName:     e.cfg.GoogleAlertSheetName,
		Logger:        e.logger.Slog(),
	})
	if err != nil {
		e.logger.Warn("Google Sheets alert log unavailable, keeping alerts in memory", applog.FieldError, err)
		return memory.New(memoryAlertRows)
	}
	return c
}

func (e *env) sessionOptions() budget.Options {
	delay := e.cfg.RefreshDelay
	if delay == 0 {
		delay = -1
	}
	return budget.Options{
		Thresholds:   budget.Thresholds{Warn: e.cfg.WarnPercent, Full: e.cfg.FullPercent},
		Concurrency:  e.cfg.ResyncConcurrency,
		RefreshDelay: delay,
		Logger:       e.logger.Slog(),
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	alertLog := e.alertLog(ctx)
	notifier := notify.Multi{
		notify.NewWriter(out),
		notify.NewLogger(e.logger.Slog()),
		sheets.NewSink(alertLog),
	}

	session, err := budget.NewSession(e.client, notifier, e.sessionOptions())
	if err != nil {
		return err
	}

	var source watcher.EventSource
	if !flagNoEvents && e.cfg.AMQPURL != "" {
		consumer, err := amqp.NewClient(e.cfg.AMQPURL, e.cfg.AMQPExchange, e.cfg.AMQPQueue, e.logger.Slog())
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer consumer.Close()
		source = consumer
	} else {
		e.logger.Info("Ledger events disabled, budgets refresh on navigation only")
	}

	w, err := watcher.New(watcher.Config{
		Session: session,
		Source:  source,
		Alerts:  alertLog,
		Start:   e.start,
		Follow:  !flagNoFollow && e.start.IsZero(),
		In:      stdin(cmd),
		Out:     out,
		Logger:  e.logger.Slog(),
	})
	if err != nil {
		return err
	}
	return w.Run(ctx, nil)
}

// stdin returns the command input, or nil when it is not interactive so
// the watcher runs until interrupted.
func stdin(cmd *cobra.Command) io.Reader {
	in := cmd.InOrStdin()
	f, ok := in.(*os.File)
	if !ok {
		return in
	}
	fi, err := f.Stat()
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		slog.Debug("Standard input is not a terminal, commands disabled")
		return nil
	}
	return in
}

package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the budgets of a month once and exit",
	RunE:  runShow,
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List the alerts logged for a month",
	RunE:  runAlerts,
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(alertsCmd)
}

func runShow(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	p := e.period()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	snap, err := e.client.LoadSnapshot(ctx, p)
	if err != nil {
		return fmt.Errorf("load budgets for %s: %w", p, err)
	}

	ids := make([]core.CategoryID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Budgets %s\n", p)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, id := range ids {
		entry := budget.NewEntry(id, snap[id])
		fmt.Fprintf(tw, "  %s\t%s\t%s / %s\t%d%%\t%s left\n",
			id, entry.Name, core.FormatMoney(entry.Spent), core.FormatMoney(entry.Limit), entry.Percent,
			core.FormatMoney(entry.Remaining()))
	}
	return tw.Flush()
}

func runAlerts(cmd *cobra.Command, _ []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	if e.cfg.GoogleSpreadsheetID == "" {
		return fmt.Errorf("no alert log: set GOOGLE_SPREADSHEET_ID")
	}
	p := e.period()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	rows, err := e.alertLog(ctx).ListAlerts(ctx, p)
	if err != nil {
		return fmt.Errorf("read alert log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintf(out, "No alerts for %s.\n", p)
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s of %s\t%d%%\n",
			r.At.Local().Format("2006-01-02 15:04"), r.Level, r.Name,
			core.FormatMoney(r.Spent), core.FormatMoney(r.Limit), r.Percent)
	}
	return tw.Flush()
}

// period is the --month value or the current month.
func (e *env) period() core.Period {
	if !e.start.IsZero() {
		return e.start
	}
	return core.CurrentPeriod(time.Now())
}

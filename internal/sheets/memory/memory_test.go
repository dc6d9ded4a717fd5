package memory

import (
	"context"
	"testing"
	"time"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
	"budgetbee/internal/sheets"
)

func TestStoreListsByPeriod(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	march := core.Period{Month: 3, Year: 2025}
	april := core.Period{Month: 4, Year: 2025}

	sink := sheets.NewSink(s)
	_ = sink.Notify(ctx, budget.Alert{CategoryID: "food", Name: "Food", Level: budget.LevelWarn, Period: march})
	_ = sink.Notify(ctx, budget.Alert{CategoryID: "food", Name: "Food", Level: budget.LevelFull, Period: march})
	_ = sink.Notify(ctx, budget.Alert{CategoryID: "bills", Name: "Bills", Level: budget.LevelWarn, Period: april})

	rows, err := s.ListAlerts(ctx, march)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Level != budget.LevelWarn || rows[1].Level != budget.LevelFull {
		t.Errorf("march rows = %+v", rows)
	}
	if rows[0].At.IsZero() {
		t.Error("sink did not stamp the row")
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestStoreBounded(t *testing.T) {
	ctx := context.Background()
	s := New(2)
	p := core.Period{Month: 1, Year: 2025}
	for i := 0; i < 5; i++ {
		_ = s.AppendAlert(ctx, sheets.AlertRow{Period: p, Percent: i, At: time.Unix(int64(i), 0)})
	}
	rows, _ := s.ListAlerts(ctx, p)
	if len(rows) != 2 || rows[0].Percent != 3 || rows[1].Percent != 4 {
		t.Errorf("rows = %+v", rows)
	}
}

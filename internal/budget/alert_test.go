package budget

import (
	"reflect"
	"testing"

	"budgetbee/internal/core"
)

func entryAt(spent, limit int64) Entry {
	return NewEntry("food", Figures{Spent: rs(spent), Limit: rs(limit), Name: "Food"})
}

func evaluateAll(d *Deduplicator, entries ...Entry) []Level {
	var fired []Level
	for _, e := range entries {
		if a, ok := d.Evaluate(e); ok {
			fired = append(fired, a.Level)
		}
	}
	return fired
}

func TestDeduplicator(t *testing.T) {
	tests := []struct {
		name   string
		spents []int64
		limit  int64
		want   []Level
	}{
		{"monotonic crossing", []int64{0, 50, 95, 100}, 100, []Level{LevelWarn, LevelFull}},
		{"stable percent", []int64{95, 95, 95}, 100, []Level{LevelWarn}},
		{"jump straight to full", []int64{10, 120}, 100, []Level{LevelFull}},
		{"reset below warn", []int64{100, 80, 100}, 100, []Level{LevelFull, LevelFull}},
		{"dip within warn band keeps both", []int64{95, 100, 92, 100}, 100, []Level{LevelWarn, LevelFull}},
		{"warn refires after reset", []int64{95, 50, 91}, 100, []Level{LevelWarn, LevelWarn}},
		{"no limit never alerts", []int64{0, 500, 1000}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeduplicator(DefaultThresholds())
			var entries []Entry
			for _, s := range tt.spents {
				entries = append(entries, entryAt(s, tt.limit))
			}
			if got := evaluateAll(d, entries...); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fired %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeduplicatorIdempotent(t *testing.T) {
	d := NewDeduplicator(DefaultThresholds())
	e := entryAt(460, 500)

	fired := evaluateAll(d, e, e)
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts, want 1", len(fired))
	}
	if !d.Shown(AlertKey{CategoryID: "food", Level: LevelWarn}) {
		t.Error("warn key not recorded")
	}
}

func TestDeduplicatorPerCategory(t *testing.T) {
	d := NewDeduplicator(DefaultThresholds())
	food := entryAt(95, 100)
	bills := NewEntry("bills", Figures{Spent: rs(95), Limit: rs(100), Name: "Bills"})

	if got := evaluateAll(d, food, bills, food, bills); len(got) != 2 {
		t.Errorf("fired %v, want one warn per category", got)
	}
}

func TestDeduplicatorCustomThresholds(t *testing.T) {
	d := NewDeduplicator(Thresholds{Warn: 75, Full: 100})
	if got := evaluateAll(d, entryAt(74, 100), entryAt(75, 100)); !reflect.DeepEqual(got, []Level{LevelWarn}) {
		t.Errorf("fired %v, want warn at 75%%", got)
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		t       Thresholds
		wantErr bool
	}{
		{DefaultThresholds(), false},
		{Thresholds{Warn: 75, Full: 75}, false},
		{Thresholds{Warn: 0, Full: 100}, true},
		{Thresholds{Warn: 100, Full: 90}, true},
	}
	for _, tt := range tests {
		if err := tt.t.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("%+v.Validate() error = %v, wantErr %v", tt.t, err, tt.wantErr)
		}
	}
}

func TestAlertMessage(t *testing.T) {
	a := Alert{CategoryID: core.CategoryID("food"), Name: "Food", Level: LevelFull}
	if got, want := a.Message(), `Budget limit reached for "Food"`; got != want {
		t.Errorf("full message = %q, want %q", got, want)
	}
	a.Level = LevelWarn
	if got, want := a.Message(), `"Food" budget is about to reach its limit`; got != want {
		t.Errorf("warn message = %q, want %q", got, want)
	}
	if a.Key() != (AlertKey{CategoryID: "food", Level: LevelWarn}) {
		t.Errorf("key = %+v", a.Key())
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelWarn, LevelFull} {
		got, err := ParseLevel(l.String())
		if err != nil || got != l {
			t.Errorf("ParseLevel(%q) = %v, %v", l.String(), got, err)
		}
	}
	if _, err := ParseLevel("level(7)"); err == nil {
		t.Error("unknown level accepted")
	}
}

package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"budgetbee/internal/budget"
	"budgetbee/internal/core"
	"budgetbee/internal/sheets"
)

// Column order of the alert sheet.
const (
	colTime = iota
	colPeriod
	colCategory
	colName
	colLevel
	colSpent
	colLimit
	colPercent
)

// parseAlertRow converts one sheet row back into an AlertRow. Header rows
// and hand-edited garbage report false.
func parseAlertRow(row []string) (sheets.AlertRow, bool) {
	at, err := time.Parse(time.RFC3339, safeGet(row, colTime))
	if err != nil {
		return sheets.AlertRow{}, false
	}
	p, err := core.ParsePeriod(safeGet(row, colPeriod))
	if err != nil {
		return sheets.AlertRow{}, false
	}
	id, err := core.ParseCategoryID(safeGet(row, colCategory))
	if err != nil {
		return sheets.AlertRow{}, false
	}
	level, err := budget.ParseLevel(safeGet(row, colLevel))
	if err != nil {
		return sheets.AlertRow{}, false
	}
	spent, err := core.ParseAmount(safeGet(row, colSpent))
	if err != nil {
		return sheets.AlertRow{}, false
	}
	limit, err := core.ParseAmount(safeGet(row, colLimit))
	if err != nil {
		return sheets.AlertRow{}, false
	}
	percent, _ := strconv.Atoi(safeGet(row, colPercent))

	return sheets.AlertRow{
		At:         at,
		Period:     p,
		CategoryID: id,
		Name:       safeGet(row, colName),
		Level:      level,
		Spent:      spent,
		Limit:      limit,
		Percent:    percent,
	}, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

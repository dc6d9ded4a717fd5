package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the (month, year) aggregation window for spent and limit figures.
type Period struct {
	Month int // 1-12
	Year  int
}

const (
	minYear = 1970
	maxYear = 9999
)

// NewPeriod builds a validated period.
func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// CurrentPeriod returns the period containing t.
func CurrentPeriod(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < minYear || p.Year > maxYear {
		return ErrInvalidYear
	}
	return nil
}

// IsZero reports whether the period was never set.
func (p Period) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

// Next returns the following month.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Month: 1, Year: p.Year + 1}
	}
	return Period{Month: p.Month + 1, Year: p.Year}
}

// Prev returns the preceding month.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Month: 12, Year: p.Year - 1}
	}
	return Period{Month: p.Month - 1, Year: p.Year}
}

// Start is the first day of the period at midnight UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End is the first day of the following period; the window is [Start, End).
func (p Period) End() time.Time {
	return p.Next().Start()
}

// Contains reports whether the calendar day of t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && int(t.Month()) == p.Month
}

// String renders the month navigation label, e.g. "03/2026".
func (p Period) String() string {
	return fmt.Sprintf("%02d/%d", p.Month, p.Year)
}

// ParsePeriod parses "M/YYYY" or "MM/YYYY".
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("parse period %q: expected MM/YYYY", s)
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, ErrInvalidMonth)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Period{}, fmt.Errorf("parse period %q: %w", s, ErrInvalidYear)
	}
	return NewPeriod(m, y)
}

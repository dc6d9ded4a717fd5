// Package budget keeps a session-local cache of per-category budget figures
// consistent with the server-side ledger and raises threshold alerts.
//
// A Session wires the pieces together: transaction events published on the
// EventBus make the Aggregator refetch the affected category, the Navigator
// resynchronises the whole cache when the displayed period changes, and the
// Deduplicator turns each upserted Entry into at most one alert per crossing.
package budget

import (
	"github.com/shopspring/decimal"

	"budgetbee/internal/core"
)

var (
	decHundred = decimal.NewFromInt(100)
	decTwo     = decimal.NewFromInt(2)
)

// Entry is the last known budget state of one category in the active period.
// Percent and Exceeded are derived from Spent and Limit and never set directly.
type Entry struct {
	CategoryID core.CategoryID
	Name       string
	Icon       string
	Limit      core.Money
	Spent      core.Money
	Percent    int
	Exceeded   bool
}

// Figures are the authoritative numbers the server reports for a category.
type Figures struct {
	Spent core.Money
	Limit core.Money
	Name  string
	Icon  string
}

// Snapshot maps every category of a period's budget list to its figures.
type Snapshot map[core.CategoryID]Figures

// Partial carries the fields of an upsert. Nil amounts and empty strings
// leave the current value untouched.
type Partial struct {
	Spent *core.Money
	Limit *core.Money
	Name  string
	Icon  string
}

// Partial converts server figures into a full-overwrite update.
func (f Figures) Partial() Partial {
	spent, limit := f.Spent, f.Limit
	return Partial{Spent: &spent, Limit: &limit, Name: f.Name, Icon: f.Icon}
}

// NewEntry builds a derived entry straight from figures.
func NewEntry(id core.CategoryID, f Figures) Entry {
	e := Entry{CategoryID: id}
	e.merge(f.Partial())
	return e
}

func (e *Entry) merge(p Partial) {
	if p.Spent != nil {
		e.Spent = nonNegative(*p.Spent)
	}
	if p.Limit != nil {
		e.Limit = nonNegative(*p.Limit)
	}
	if p.Name != "" {
		e.Name = p.Name
	}
	if p.Icon != "" {
		e.Icon = p.Icon
	}
	e.Percent = displayPercent(e.Spent, e.Limit)
	e.Exceeded = e.Limit.Cents > 0 && e.Spent.Cents >= e.Limit.Cents
}

// Remaining is the amount left before the limit, floored at zero.
func (e Entry) Remaining() core.Money {
	if e.Spent.Cents >= e.Limit.Cents {
		return core.Money{}
	}
	return core.Money{Cents: e.Limit.Cents - e.Spent.Cents}
}

func nonNegative(m core.Money) core.Money {
	if m.Cents < 0 {
		return core.Money{}
	}
	return m
}

// displayPercent is round(spent/limit*100) half-up, capped at 100.
func displayPercent(spent, limit core.Money) int {
	if limit.Cents <= 0 {
		return 0
	}
	s := decimal.NewFromInt(spent.Cents)
	l := decimal.NewFromInt(limit.Cents)
	// floor((200*s + l) / (2*l)) == round(100*s/l) for non-negative s
	num := s.Mul(decHundred).Mul(decTwo).Add(l)
	q, _ := num.QuoRem(l.Mul(decTwo), 0)
	if q.GreaterThan(decHundred) {
		return 100
	}
	return int(q.IntPart())
}

// reaches reports spent/limit*100 >= threshold without rounding.
func reaches(spent, limit core.Money, threshold int) bool {
	lhs := decimal.NewFromInt(spent.Cents).Mul(decHundred)
	rhs := decimal.NewFromInt(limit.Cents).Mul(decimal.NewFromInt(int64(threshold)))
	return lhs.Cmp(rhs) >= 0
}

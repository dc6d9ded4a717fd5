// Package memory keeps the alert log in process, for watchers without a
// spreadsheet and for tests.
package memory

import (
	"context"
	"sync"

	"budgetbee/internal/core"
	"budgetbee/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows []sheets.AlertRow
	max  int
}

var _ sheets.AlertLog = (*Store)(nil)

// New keeps at most max rows, dropping the oldest. max <= 0 means unbounded.
func New(max int) *Store {
	return &Store{max: max}
}

func (s *Store) AppendAlert(_ context.Context, row sheets.AlertRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	if s.max > 0 && len(s.rows) > s.max {
		s.rows = append(s.rows[:0:0], s.rows[len(s.rows)-s.max:]...)
	}
	return nil
}

func (s *Store) ListAlerts(_ context.Context, p core.Period) ([]sheets.AlertRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.AlertRow
	for _, r := range s.rows {
		if r.Period == p {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Package memory is an in-process sheets.RowWriter for local runs and tests.
package memory

import (
	"context"
	"sync"

	ports "expenses/internal/sheets"
)

var _ ports.RowWriter = (*Sheet)(nil)

type Sheet struct {
	mu     sync.Mutex
	rows   [][]string
	writes int
}

func New() *Sheet {
	return &Sheet{}
}

func (s *Sheet) ReplaceRows(_ context.Context, rows [][]string) error {
	cp := make([][]string, len(rows))
	for i, r := range rows {
		cp[i] = append([]string(nil), r...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = cp
	s.writes++
	return nil
}

// Rows returns a copy of the current contents.
func (s *Sheet) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Writes counts ReplaceRows calls.
func (s *Sheet) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Package memory is an in-process LoadMirror used in tests and when no
// spreadsheet backend is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"truckpay/internal/core"
	ports "truckpay/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows map[string]map[int64]core.Load // user -> load id -> row
}

var _ ports.LoadMirror = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[string]map[int64]core.Load)}
}

// Upsert stores the load's row and returns a synthetic row reference.
func (s *Store) Upsert(_ context.Context, userID string, l core.Load) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.rows[userID]
	if user == nil {
		user = make(map[int64]core.Load)
		s.rows[userID] = user
	}
	user[l.ID] = l
	return fmt.Sprintf("mem:%s:%d", userID, l.ID), nil
}

// Delete removes the load's row; absent rows are not an error.
func (s *Store) Delete(_ context.Context, userID string, loadID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user := s.rows[userID]; user != nil {
		delete(user, loadID)
	}
	return nil
}

// Rows returns a copy of the user's mirrored rows.
func (s *Store) Rows(userID string) []core.Load {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.rows[userID]
	out := make([]core.Load, 0, len(user))
	for _, l := range user {
		out = append(out, l)
	}
	return out
}

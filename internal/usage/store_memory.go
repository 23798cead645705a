package usage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu           sync.Mutex
	rows         map[string]Usage
	defaultLimit int
}

func NewMemoryStore(defaultLimit int) *MemoryStore {
	return &MemoryStore{
		rows:         make(map[string]Usage),
		defaultLimit: defaultLimit,
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.rows[userID]; ok {
		return u, nil
	}
	return s.defaultRow(userID), nil
}

func (s *MemoryStore) Increment(ctx context.Context, userID string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[userID]
	if !ok {
		u = s.defaultRow(userID)
	}
	u.Used++
	s.rows[userID] = u
	return u, nil
}

func (s *MemoryStore) defaultRow(userID string) Usage {
	return Usage{
		UserID:   userID,
		Plan:     PlanFree,
		Limit:    s.defaultLimit,
		Used:     0,
		ResetsAt: nextReset(time.Now().UTC()),
	}
}

var _ Store = (*MemoryStore)(nil)

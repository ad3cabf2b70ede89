package authorizationcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"assent/internal/grants"
	"assent/pkg/platform/sentinel"
)

// InMemoryStore keeps authorization codes in memory for tests/dev.
//
// Error contract:
// - sentinel.ErrNotFound for unknown (or already consumed) codes
// - nil on success
type InMemoryStore struct {
	mu    sync.Mutex
	codes map[string]*grants.AuthorizationCode
}

func New() *InMemoryStore {
	return &InMemoryStore{codes: make(map[string]*grants.AuthorizationCode)}
}

func (s *InMemoryStore) Store(_ context.Context, code *grants.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

// Consume removes and returns the code in one step. Reused codes are
// indistinguishable from unknown ones.
func (s *InMemoryStore) Consume(_ context.Context, code string) (*grants.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[code]
	if !ok {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	delete(s.codes, code)
	return record, nil
}

// DeleteExpired removes all codes expired as of now. The time is injected so
// tests drive it directly.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for handle, record := range s.codes {
		if record.IsExpired(now) {
			delete(s.codes, handle)
			deleted++
		}
	}
	return deleted, nil
}

package consent

import (
	"context"
	"fmt"
	"sync"

	"assent/pkg/platform/sentinel"
)

// InMemoryStore keeps remembered grants in memory for tests/dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[string]RememberedGrant
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{grants: make(map[string]RememberedGrant)}
}

func key(subjectID, clientID string) string {
	return subjectID + "|" + clientID
}

func (s *InMemoryStore) Find(_ context.Context, subjectID, clientID string) (RememberedGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grant, ok := s.grants[key(subjectID, clientID)]
	if !ok {
		return RememberedGrant{}, fmt.Errorf("remembered grant not found: %w", sentinel.ErrNotFound)
	}
	return grant, nil
}

func (s *InMemoryStore) Save(_ context.Context, grant RememberedGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[key(grant.SubjectID, grant.ClientID)] = grant
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, subjectID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, key(subjectID, clientID))
	return nil
}

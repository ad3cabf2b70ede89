package referencetoken

import (
	"context"
	"fmt"
	"sync"

	"assent/internal/grants"
	"assent/pkg/platform/sentinel"
)

// InMemoryStore keeps reference access tokens in memory for tests/dev.
type InMemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*grants.ReferenceToken
}

func New() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*grants.ReferenceToken)}
}

func (s *InMemoryStore) Store(_ context.Context, token *grants.ReferenceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.Handle] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, handle string) (*grants.ReferenceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[handle]
	if !ok {
		return nil, fmt.Errorf("reference token not found: %w", sentinel.ErrNotFound)
	}
	cp := *token
	return &cp, nil
}

func (s *InMemoryStore) Remove(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, handle)
	return nil
}

func (s *InMemoryStore) RemoveBySubjectAndClient(_ context.Context, subjectID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, token := range s.tokens {
		if token.ClientID == clientID && token.SubjectID == subjectID {
			delete(s.tokens, handle)
		}
	}
	return nil
}

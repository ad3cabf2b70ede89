package refreshtoken

import (
	"context"
	"fmt"
	"sync"

	"assent/internal/grants"
	"assent/pkg/platform/sentinel"
)

// InMemoryStore keeps refresh tokens in memory for tests/dev. Rotation policy:
// every UpdateRotate issues a fresh handle and deletes the old one, so a
// replayed handle reads as not-found.
type InMemoryStore struct {
	mu     sync.Mutex
	tokens map[string]*grants.RefreshToken
}

func New() *InMemoryStore {
	return &InMemoryStore{tokens: make(map[string]*grants.RefreshToken)}
}

func (s *InMemoryStore) Store(_ context.Context, token *grants.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.Handle] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, handle string) (*grants.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[handle]
	if !ok {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	cp := *token
	return &cp, nil
}

func (s *InMemoryStore) UpdateRotate(_ context.Context, handle string, updated *grants.RefreshToken) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[handle]; !ok {
		return "", fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	delete(s.tokens, handle)

	next := *updated
	next.Handle = grants.NewHandle()
	s.tokens[next.Handle] = &next
	return next.Handle, nil
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
		if token.ClientID == clientID && token.SubjectID() == subjectID {
			delete(s.tokens, handle)
		}
	}
	return nil
}

package client

import (
	"context"
	"fmt"
	"sync"

	"assent/pkg/platform/sentinel"
)

// InMemoryStore keeps client registrations in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemory(clients ...*Client) *InMemoryStore {
	store := &InMemoryStore{clients: make(map[string]*Client, len(clients))}
	for _, c := range clients {
		store.clients[c.ClientID] = c
	}
	return store
}

func (s *InMemoryStore) Add(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ClientID] = c
}

func (s *InMemoryStore) FindEnabledClientByID(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok || !c.Enabled {
		return nil, fmt.Errorf("client %q: %w", clientID, sentinel.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

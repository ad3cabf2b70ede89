package resource

import (
	"context"
	"sync"
)

// InMemoryStore holds registered resources in memory for tests/dev.
type InMemoryStore struct {
	mu        sync.RWMutex
	resources Resources
}

// NewInMemory builds a store from the given registrations. Duplicate names
// across identity resources and API scopes fail construction (configuration
// error, detected once, not per request).
func NewInMemory(identity []IdentityResource, apiScopes []APIScope) (*InMemoryStore, error) {
	resources, err := NewResources(identity, apiScopes)
	if err != nil {
		return nil, err
	}
	return &InMemoryStore{resources: resources}, nil
}

func (s *InMemoryStore) FindResourcesByScopeNames(_ context.Context, scopeNames []string) (Resources, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found Resources
	for _, name := range scopeNames {
		if res, ok := s.resources.FindIdentityResource(name); ok {
			found.IdentityResources = append(found.IdentityResources, res)
		}
		if scope, ok := s.resources.FindAPIScope(name); ok {
			found.APIScopes = append(found.APIScopes, scope)
		}
	}
	return found, nil
}

func (s *InMemoryStore) FindEnabledAll(_ context.Context) (Resources, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resources.FilterEnabled(), nil
}

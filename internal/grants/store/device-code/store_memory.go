package devicecode

import (
	"context"
	"fmt"
	"sync"

	"assent/internal/grants"
	"assent/pkg/platform/sentinel"
)

// InMemoryStore keeps device codes in memory for tests/dev. Records are
// addressable both by the device code and by the short user code.
type InMemoryStore struct {
	mu       sync.Mutex
	byDevice map[string]*grants.DeviceCode
	byUser   map[string]string
}

func New() *InMemoryStore {
	return &InMemoryStore{
		byDevice: make(map[string]*grants.DeviceCode),
		byUser:   make(map[string]string),
	}
}

func (s *InMemoryStore) StoreDeviceCode(_ context.Context, code *grants.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, taken := s.byUser[code.UserCode]; taken && existing != code.DeviceCode {
		return fmt.Errorf("user code collision: %w", sentinel.ErrConflict)
	}
	cp := *code
	s.byDevice[code.DeviceCode] = &cp
	s.byUser[code.UserCode] = code.DeviceCode
	return nil
}

func (s *InMemoryStore) FindByUserCode(_ context.Context, userCode string) (*grants.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceCode, ok := s.byUser[userCode]
	if !ok {
		return nil, fmt.Errorf("user code not found: %w", sentinel.ErrNotFound)
	}
	return s.findLocked(deviceCode)
}

func (s *InMemoryStore) FindByDeviceCode(_ context.Context, deviceCode string) (*grants.DeviceCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(deviceCode)
}

func (s *InMemoryStore) findLocked(deviceCode string) (*grants.DeviceCode, error) {
	record, ok := s.byDevice[deviceCode]
	if !ok {
		return nil, fmt.Errorf("device code not found: %w", sentinel.ErrNotFound)
	}
	cp := *record
	return &cp, nil
}

func (s *InMemoryStore) Update(_ context.Context, code *grants.DeviceCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byDevice[code.DeviceCode]; !ok {
		return fmt.Errorf("device code not found: %w", sentinel.ErrNotFound)
	}
	cp := *code
	s.byDevice[code.DeviceCode] = &cp
	return nil
}

func (s *InMemoryStore) RemoveByDeviceCode(_ context.Context, deviceCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.byDevice[deviceCode]
	if !ok {
		return nil
	}
	delete(s.byUser, record.UserCode)
	delete(s.byDevice, deviceCode)
	return nil
}

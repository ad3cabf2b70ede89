package profile

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"assent/internal/oidc"
	"assent/pkg/platform/sentinel"
)

// User is a test/dev subject record.
type User struct {
	SubjectID string
	Username  string
	Password  string
	Active    bool
	Claims    []oidc.Claim
}

// InMemoryService backs Service and PasswordValidator with a fixed user set.
type InMemoryService struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemory(users ...User) *InMemoryService {
	svc := &InMemoryService{users: make(map[string]User, len(users))}
	for _, u := range users {
		svc.users[u.SubjectID] = u
	}
	return svc
}

func (s *InMemoryService) IsActive(_ context.Context, subject oidc.ClaimSet, _ string) (bool, error) {
	subjectID, err := subject.SubjectID()
	if err != nil {
		return false, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[subjectID]
	return ok && user.Active, nil
}

func (s *InMemoryService) GetProfileData(_ context.Context, subject oidc.ClaimSet, claimTypes []string) ([]oidc.Claim, error) {
	subjectID, err := subject.SubjectID()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[subjectID]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", subjectID, sentinel.ErrNotFound)
	}

	if len(claimTypes) == 0 {
		out := make([]oidc.Claim, len(user.Claims))
		copy(out, user.Claims)
		return out, nil
	}

	wanted := make(map[string]struct{}, len(claimTypes))
	for _, ct := range claimTypes {
		wanted[ct] = struct{}{}
	}
	var out []oidc.Claim
	for _, claim := range user.Claims {
		if _, ok := wanted[claim.Type]; ok {
			out = append(out, claim)
		}
	}
	return out, nil
}

func (s *InMemoryService) ValidateCredentials(_ context.Context, username, password string) (oidc.ClaimSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Username != username {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
			break
		}
		if !user.Active {
			break
		}
		return oidc.NewSubject(user.SubjectID, oidc.LocalIdentityProvider, time.Now()), nil
	}
	return oidc.ClaimSet{}, fmt.Errorf("invalid credentials: %w", sentinel.ErrNotFound)
}

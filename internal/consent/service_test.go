package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/pkg/platform/sentinel"
)

type policy struct {
	id       string
	required bool
	remember bool
}

func (p policy) GetClientID() string          { return p.id }
func (p policy) ConsentRequired() bool        { return p.required }
func (p policy) RememberConsentAllowed() bool { return p.remember }

type ServiceSuite struct {
	suite.Suite
	store   *InMemoryStore
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewInMemory()
	s.service = NewService(s.store, WithClock(func() time.Time {
		return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	}))
}

func (s *ServiceSuite) TestRequiresConsent() {
	ctx := context.Background()

	s.Run("clients without consent requirement skip the prompt", func() {
		required, err := s.service.RequiresConsent(ctx, "user-1", policy{id: "c1"}, []string{"openid"})
		s.Require().NoError(err)
		s.False(required)
	})

	s.Run("consent always required when remembering is disabled", func() {
		required, err := s.service.RequiresConsent(ctx, "user-1", policy{id: "c1", required: true}, []string{"openid"})
		s.Require().NoError(err)
		s.True(required)
	})

	s.Run("remembered grant covering the request skips the prompt", func() {
		p := policy{id: "c1", required: true, remember: true}
		s.Require().NoError(s.service.UpdateConsent(ctx, "user-1", p, []string{"openid", "api1"}))

		required, err := s.service.RequiresConsent(ctx, "user-1", p, []string{"openid"})
		s.Require().NoError(err)
		s.False(required)
	})

	s.Run("remembered grant missing a scope forces the prompt", func() {
		p := policy{id: "c2", required: true, remember: true}
		s.Require().NoError(s.service.UpdateConsent(ctx, "user-1", p, []string{"openid"}))

		required, err := s.service.RequiresConsent(ctx, "user-1", p, []string{"openid", "api1"})
		s.Require().NoError(err)
		s.True(required)
	})
}

func (s *ServiceSuite) TestUpdateConsentClearsWithEmptySet() {
	ctx := context.Background()
	p := policy{id: "c1", required: true, remember: true}

	s.Require().NoError(s.service.UpdateConsent(ctx, "user-1", p, []string{"openid"}))
	_, err := s.store.Find(ctx, "user-1", "c1")
	s.Require().NoError(err)

	// Opting out of remembering removes the stored grant entirely.
	s.Require().NoError(s.service.UpdateConsent(ctx, "user-1", p, nil))
	_, err = s.store.Find(ctx, "user-1", "c1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ServiceSuite) TestUpdateConsentNoopWhenRememberingDisabled() {
	ctx := context.Background()
	p := policy{id: "c1", required: true}

	s.Require().NoError(s.service.UpdateConsent(ctx, "user-1", p, []string{"openid"}))
	_, err := s.store.Find(ctx, "user-1", "c1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

package deviceflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/audit"
	"assent/internal/grants"
	devicecode "assent/internal/grants/store/device-code"
	"assent/internal/oidc"
	dErrors "assent/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	service *Service
	devices *devicecode.InMemoryStore
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.devices = devicecode.New()
	s.service = NewService(s.devices, WithServiceClock(func() time.Time { return s.now }))
}

func (s *ServiceSuite) storedCode(mutate func(*grants.DeviceCode)) *grants.DeviceCode {
	code := &grants.DeviceCode{
		DeviceCode:      grants.NewHandle(),
		UserCode:        "123456789",
		ClientID:        "tv-app",
		RequestedScopes: []string{"openid", "api.read"},
		State:           grants.DeviceCodePending,
		CreationTime:    s.now.Add(-time.Minute),
		Lifetime:        10 * time.Minute,
		Interval:        5 * time.Second,
	}
	if mutate != nil {
		mutate(code)
	}
	s.Require().NoError(s.devices.StoreDeviceCode(context.Background(), code))
	return code
}

func (s *ServiceSuite) subject() oidc.ClaimSet {
	return oidc.NewSubject("alice", oidc.LocalIdentityProvider, s.now.Add(-time.Minute))
}

func (s *ServiceSuite) TestFindByUserCode() {
	s.storedCode(nil)

	code, err := s.service.FindByUserCode(context.Background(), "123456789")
	s.Require().NoError(err)
	s.Equal("tv-app", code.ClientID)
}

func (s *ServiceSuite) TestFindByUserCodeUnknown() {
	_, err := s.service.FindByUserCode(context.Background(), "000000000")
	s.Require().Error(err)
	s.True(dErrors.IsCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestFindByUserCodeExpired() {
	s.storedCode(func(c *grants.DeviceCode) { c.CreationTime = s.now.Add(-time.Hour) })

	_, err := s.service.FindByUserCode(context.Background(), "123456789")
	s.Require().Error(err)
	s.True(dErrors.IsCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestApprove() {
	s.storedCode(nil)

	err := s.service.Approve(context.Background(), "123456789", s.subject(), "session-1", []string{"openid"})
	s.Require().NoError(err)

	code, err := s.devices.FindByUserCode(context.Background(), "123456789")
	s.Require().NoError(err)
	s.Equal(grants.DeviceCodeAuthorized, code.State)
	s.Equal("session-1", code.SessionID)
	s.Equal([]string{"openid"}, code.GrantedScopes)
}

func (s *ServiceSuite) TestApproveRequiresAuthenticatedUser() {
	s.storedCode(nil)

	err := s.service.Approve(context.Background(), "123456789", oidc.ClaimSet{}, "session-1", []string{"openid"})
	s.Require().Error(err)
	s.True(dErrors.IsCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestDeny() {
	s.storedCode(nil)

	s.Require().NoError(s.service.Deny(context.Background(), "123456789"))

	code, err := s.devices.FindByUserCode(context.Background(), "123456789")
	s.Require().NoError(err)
	s.Equal(grants.DeviceCodeDenied, code.State)
}

func (s *ServiceSuite) TestDenyPublishesAuditEvent() {
	sink := audit.NewMemory()
	service := NewService(s.devices,
		WithServiceClock(func() time.Time { return s.now }),
		WithServiceAuditor(sink),
	)
	s.storedCode(nil)

	s.Require().NoError(service.Deny(context.Background(), "123456789"))

	events := sink.Events()
	s.Require().Len(events, 1)
	s.Equal("device.denied", events[0].Action)
	s.Equal("tv-app", events[0].ClientID)
}

func (s *ServiceSuite) TestDecisionIsFinal() {
	s.storedCode(nil)
	s.Require().NoError(s.service.Deny(context.Background(), "123456789"))

	err := s.service.Approve(context.Background(), "123456789", s.subject(), "session-1", []string{"openid"})
	s.Require().Error(err)
	s.True(dErrors.IsCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestMemoryThrottle() {
	throttle := NewMemoryThrottle().WithClock(func() time.Time { return s.now })

	tooFast, err := throttle.ShouldSlowDown(context.Background(), "dev-1", 5*time.Second)
	s.Require().NoError(err)
	s.False(tooFast, "first poll is always allowed")

	tooFast, err = throttle.ShouldSlowDown(context.Background(), "dev-1", 5*time.Second)
	s.Require().NoError(err)
	s.True(tooFast, "second poll within the interval is throttled")

	s.now = s.now.Add(6 * time.Second)
	tooFast, err = throttle.ShouldSlowDown(context.Background(), "dev-1", 5*time.Second)
	s.Require().NoError(err)
	s.False(tooFast, "poll after the interval passes")
}

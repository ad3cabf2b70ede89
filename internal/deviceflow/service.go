package deviceflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"assent/internal/audit"
	"assent/internal/grants"
	"assent/internal/oidc"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// Service is the user-facing side of the device flow: looking up a typed
// user code and recording the approval decision.
type Service struct {
	devices grants.DeviceFlowStore
	auditor audit.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

type ServiceOption func(*Service)

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceAuditor records approval decisions as security events.
func WithServiceAuditor(auditor audit.Publisher) ServiceOption {
	return func(s *Service) {
		if auditor != nil {
			s.auditor = auditor
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(devices grants.DeviceFlowStore, opts ...ServiceOption) *Service {
	s := &Service{
		devices: devices,
		auditor: audit.NewMemory(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindByUserCode resolves a typed user code to its pending device grant.
// Expired and already-decided codes are reported as not found.
func (s *Service) FindByUserCode(ctx context.Context, userCode string) (*grants.DeviceCode, error) {
	code, err := s.devices.FindByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown user code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "device code lookup failed")
	}
	if code.IsExpired(s.now()) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user code expired")
	}
	if code.State != grants.DeviceCodePending {
		return nil, dErrors.New(dErrors.CodeConflict, "device code already decided")
	}
	return code, nil
}

// Approve records the user's approval with the scopes they granted. The
// polling device picks the decision up on its next token request.
func (s *Service) Approve(ctx context.Context, userCode string, subject oidc.ClaimSet, sessionID string, grantedScopes []string) error {
	code, err := s.FindByUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if subject.IsAnonymous() {
		return dErrors.New(dErrors.CodeBadRequest, "device approval requires an authenticated user")
	}

	code.Authorize(subject, sessionID, grantedScopes)
	if err := s.devices.Update(ctx, code); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "device code update failed")
	}

	s.logger.InfoContext(ctx, "device authorization approved",
		"client_id", code.ClientID, "user_code", userCode)
	return nil
}

// Deny records the user's rejection.
func (s *Service) Deny(ctx context.Context, userCode string) error {
	code, err := s.FindByUserCode(ctx, userCode)
	if err != nil {
		return err
	}

	code.Deny()
	if err := s.devices.Update(ctx, code); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "device code update failed")
	}

	if err := s.auditor.Publish(ctx, audit.NewEvent(audit.CategoryDevice, "device.denied", code.ClientID, "", "denied")); err != nil {
		s.logger.ErrorContext(ctx, "audit publish failed", "error", err)
	}
	s.logger.InfoContext(ctx, "device authorization denied",
		"client_id", code.ClientID, "user_code", userCode)
	return nil
}

package consent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// ClientConsentPolicy is the slice of client configuration the service needs.
type ClientConsentPolicy interface {
	GetClientID() string
	ConsentRequired() bool
	RememberConsentAllowed() bool
}

// Service answers "does this request need a consent prompt" and records the
// user's remembered decisions.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RequiresConsent reports whether a consent prompt must be shown for the
// subject, client, and requested raw scope values.
func (s *Service) RequiresConsent(ctx context.Context, subjectID string, client ClientConsentPolicy, requestedScopes []string) (bool, error) {
	if !client.ConsentRequired() {
		return false, nil
	}
	if !client.RememberConsentAllowed() {
		return true, nil
	}

	grant, err := s.store.Find(ctx, subjectID, client.GetClientID())
	if errors.Is(err, sentinel.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store lookup failed")
	}

	return !grant.Covers(requestedScopes), nil
}

// UpdateConsent persists the remembered scope set. An empty set explicitly
// clears the prior grant rather than leaving it stale.
func (s *Service) UpdateConsent(ctx context.Context, subjectID string, client ClientConsentPolicy, scopes []string) error {
	if !client.RememberConsentAllowed() {
		return nil
	}

	if len(scopes) == 0 {
		s.logger.Debug("clearing remembered consent", "client_id", client.GetClientID())
		if err := s.store.Remove(ctx, subjectID, client.GetClientID()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store remove failed")
		}
		return nil
	}

	grant := RememberedGrant{
		SubjectID: subjectID,
		ClientID:  client.GetClientID(),
		Scopes:    scopes,
		UpdatedAt: s.now(),
	}
	if err := s.store.Save(ctx, grant); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "consent store save failed")
	}
	return nil
}

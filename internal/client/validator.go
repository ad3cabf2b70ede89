package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// Credentials carries the client identification presented on a token-style
// request, already lifted out of the transport (Basic header or form body).
type Credentials struct {
	ClientID string
	Secret   ParsedSecret
}

// ValidatedClient is the outcome of successful client authentication.
type ValidatedClient struct {
	Client *Client
	// SecretUsed is zero for public clients.
	SecretUsed SecretType
}

// ErrInvalidClient is returned for every authentication failure: unknown
// client, disabled client, bad or expired secret. A single error keeps the
// endpoint from leaking which part failed.
var ErrInvalidClient = errors.New("client authentication failed")

// Validator authenticates a calling client and loads its configuration.
type Validator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type ValidatorOption func(*Validator)

func WithLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithClock injects the time source for testability.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func NewValidator(store Store, opts ...ValidatorOption) *Validator {
	v := &Validator{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Validate authenticates the credentials and returns the loaded client.
// Store failures other than not-found surface as infrastructure errors.
func (v *Validator) Validate(ctx context.Context, creds Credentials) (ValidatedClient, error) {
	if creds.ClientID == "" {
		return ValidatedClient{}, ErrInvalidClient
	}

	loaded, err := v.store.FindEnabledClientByID(ctx, creds.ClientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.logger.Warn("unknown or disabled client", "client_id", creds.ClientID)
			return ValidatedClient{}, ErrInvalidClient
		}
		return ValidatedClient{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "client store lookup failed")
	}

	if !loaded.RequireClientSecret {
		return ValidatedClient{Client: loaded}, nil
	}

	if creds.Secret.Credential == "" {
		v.logger.Warn("missing client secret", "client_id", creds.ClientID)
		return ValidatedClient{}, ErrInvalidClient
	}
	if !VerifySecret(loaded.Secrets, creds.Secret, v.now()) {
		v.logger.Warn("client secret verification failed", "client_id", creds.ClientID)
		return ValidatedClient{}, ErrInvalidClient
	}

	return ValidatedClient{Client: loaded, SecretUsed: creds.Secret.Type}, nil
}

// Load resolves a client without authenticating it. Used by the authorize
// endpoint, where no secret is presented.
func (v *Validator) Load(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("empty client_id: %w", sentinel.ErrNotFound)
	}
	return v.store.FindEnabledClientByID(ctx, clientID)
}

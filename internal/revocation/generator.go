// Package revocation implements RFC 7009 token revocation. Per the RFC the
// endpoint answers success even when the token is unknown or belongs to
// another client; only malformed requests fail.
package revocation

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"assent/internal/client"
	"assent/internal/grants"
	"assent/internal/oidc"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

const (
	HintAccessToken  = "access_token"
	HintRefreshToken = "refresh_token"
)

// Error is a protocol error from the revocation endpoint. The only codes it
// carries are invalid_request and unsupported_token_type.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// Generator looks up the presented handle and revokes what it finds.
type Generator struct {
	reference grants.ReferenceTokenStore
	refresh   grants.RefreshTokenStore
	logger    *slog.Logger
}

type Option func(*Generator)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func NewGenerator(reference grants.ReferenceTokenStore, refresh grants.RefreshTokenStore, opts ...Option) *Generator {
	g := &Generator{
		reference: reference,
		refresh:   refresh,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process revokes the token for the authenticated client. The hint orders
// the lookup; both kinds are tried either way. A handle owned by a different
// client is answered with success without revoking anything, so clients
// cannot revoke or probe each other's tokens.
func (g *Generator) Process(ctx context.Context, c *client.Client, token, tokenTypeHint string) (*Error, error) {
	if token == "" {
		return &Error{Code: oidc.ErrInvalidRequest, Description: "token is missing"}, nil
	}

	switch tokenTypeHint {
	case "", HintAccessToken:
		found, err := g.revokeAccessToken(ctx, c, token)
		if err != nil || found {
			return nil, err
		}
		_, err = g.revokeRefreshToken(ctx, c, token)
		return nil, err
	case HintRefreshToken:
		found, err := g.revokeRefreshToken(ctx, c, token)
		if err != nil || found {
			return nil, err
		}
		_, err = g.revokeAccessToken(ctx, c, token)
		return nil, err
	default:
		return &Error{Code: "unsupported_token_type", Description: "unknown token_type_hint"}, nil
	}
}

func (g *Generator) revokeAccessToken(ctx context.Context, c *client.Client, handle string) (bool, error) {
	token, err := g.reference.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "reference token lookup failed")
	}

	if token.ClientID != c.ClientID {
		g.logger.WarnContext(ctx, "client tried to revoke a token it does not own",
			"client_id", c.ClientID, "owner_client_id", token.ClientID)
		return true, nil
	}

	if err := g.reference.Remove(ctx, handle); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "reference token removal failed")
	}
	g.logger.InfoContext(ctx, "access token revoked", "client_id", c.ClientID)
	return true, nil
}

// revokeRefreshToken removes the refresh token and cascades to every access
// token issued to the same subject and client, so a stolen refresh token
// cannot leave live access tokens behind.
func (g *Generator) revokeRefreshToken(ctx context.Context, c *client.Client, handle string) (bool, error) {
	token, err := g.refresh.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "refresh token lookup failed")
	}

	if token.ClientID != c.ClientID {
		g.logger.WarnContext(ctx, "client tried to revoke a token it does not own",
			"client_id", c.ClientID, "owner_client_id", token.ClientID)
		return true, nil
	}

	subjectID := token.SubjectID()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.refresh.RemoveBySubjectAndClient(egCtx, subjectID, c.ClientID)
	})
	eg.Go(func() error {
		return g.reference.RemoveBySubjectAndClient(egCtx, subjectID, c.ClientID)
	})
	if err := eg.Wait(); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "refresh token cascade failed")
	}

	g.logger.InfoContext(ctx, "refresh token revoked with cascade",
		"client_id", c.ClientID)
	return true, nil
}

// Package introspection implements RFC 7662 token introspection for API
// resources. Unknown, expired, and out-of-scope tokens all produce the same
// inactive response so callers cannot probe token existence.
package introspection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"assent/internal/grants"
	"assent/internal/oidc"
	"assent/internal/resource"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// Response is the introspection JSON body. Only "active" is guaranteed.
type Response map[string]any

func inactive() Response {
	return Response{"active": false}
}

// Caller identifies the API scope that authenticated to the endpoint.
// Introspection is scoped: a caller only sees tokens that carry its own
// scope, unless the scope allows unrestricted introspection.
type Caller struct {
	ScopeName string
}

// Generator resolves reference tokens and renders introspection responses.
type Generator struct {
	reference grants.ReferenceTokenStore
	resources resource.Store
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Generator)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGenerator(reference grants.ReferenceTokenStore, resources resource.Store, opts ...Option) *Generator {
	g := &Generator{
		reference: reference,
		resources: resources,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process introspects a token handle on behalf of the caller.
func (g *Generator) Process(ctx context.Context, tokenHandle string, caller Caller) (Response, error) {
	token, err := g.reference.Get(ctx, tokenHandle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return inactive(), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "reference token lookup failed")
	}

	if token.IsExpired(g.now()) {
		return inactive(), nil
	}

	callerScope, unrestricted, err := g.callerScope(ctx, caller)
	if err != nil {
		return nil, err
	}

	if !unrestricted && !tokenHasScope(token, caller.ScopeName) {
		// The token is real but none of the caller's business.
		g.logger.DebugContext(ctx, "introspection scope mismatch",
			"caller_scope", caller.ScopeName, "token_client_id", token.ClientID)
		return inactive(), nil
	}

	return g.render(token, callerScope, unrestricted), nil
}

func (g *Generator) callerScope(ctx context.Context, caller Caller) (resource.APIScope, bool, error) {
	resolved, err := g.resources.FindResourcesByScopeNames(ctx, []string{caller.ScopeName})
	if err != nil {
		return resource.APIScope{}, false, dErrors.Wrap(err, dErrors.CodeUnavailable, "caller scope lookup failed")
	}
	scope, ok := resolved.FindAPIScope(caller.ScopeName)
	if !ok {
		return resource.APIScope{}, false, dErrors.Newf(dErrors.CodeInvariantViolation,
			"authenticated caller scope %q is not registered", caller.ScopeName)
	}
	return scope, scope.AllowUnrestrictedIntrospection, nil
}

func (g *Generator) render(token *grants.ReferenceToken, callerScope resource.APIScope, unrestricted bool) Response {
	resp := Response{
		"active":     true,
		"client_id":  token.ClientID,
		"iat":        token.CreationTime.Unix(),
		"exp":        token.CreationTime.Add(token.Lifetime).Unix(),
		"token_type": "Bearer",
	}

	if unrestricted {
		resp["scope"] = token.Scopes
	} else {
		// A restricted caller only learns about its own scope.
		resp["scope"] = []string{callerScope.Name}
	}

	if token.SubjectID != "" {
		resp["sub"] = token.SubjectID
	}
	for _, claim := range token.Claims.Claims() {
		if claim.Type == oidc.ClaimSubject {
			continue
		}
		if _, taken := resp[claim.Type]; taken {
			continue
		}
		resp[claim.Type] = claim.Value
	}
	return resp
}

func tokenHasScope(token *grants.ReferenceToken, name string) bool {
	for _, s := range token.Scopes {
		if s == name {
			return true
		}
	}
	return false
}

package token

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"assent/internal/client"
	"assent/internal/grants"
	jwttoken "assent/internal/jwt_token"
	"assent/internal/oidc"
	"assent/internal/profile"
	"assent/internal/resource"
	dErrors "assent/pkg/domain-errors"
)

// TokenCreator mints the signed tokens embedded in token responses.
type TokenCreator interface {
	CreateAccessToken(ctx context.Context, req jwttoken.AccessTokenRequest) (string, error)
	CreateIdentityToken(ctx context.Context, req jwttoken.IdentityTokenRequest) (string, error)
}

// ResponseGenerator turns a validated token request into the grant-specific
// token response.
type ResponseGenerator struct {
	tokens    TokenCreator
	refresh   grants.RefreshTokenStore
	reference grants.ReferenceTokenStore
	resources resource.Store
	profile   profile.Service
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type GeneratorOption func(*ResponseGenerator)

func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *ResponseGenerator) {
		g.logger = logger
	}
}

func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *ResponseGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewResponseGenerator(
	tokens TokenCreator,
	refresh grants.RefreshTokenStore,
	reference grants.ReferenceTokenStore,
	resources resource.Store,
	profileSvc profile.Service,
	opts ...GeneratorOption,
) *ResponseGenerator {
	g := &ResponseGenerator{
		tokens:    tokens,
		refresh:   refresh,
		reference: reference,
		resources: resources,
		profile:   profileSvc,
		logger:    slog.Default(),
		tracer:    otel.Tracer("assent/token"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process builds the token response for a validated request.
func (g *ResponseGenerator) Process(ctx context.Context, req *ValidatedRequest) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "token.Process")
	defer span.End()

	switch req.GrantType {
	case oidc.GrantRefreshToken:
		return g.processRefresh(ctx, req)
	default:
		return g.processIssue(ctx, req)
	}
}

// processIssue covers every grant that mints tokens from scratch.
func (g *ResponseGenerator) processIssue(ctx context.Context, req *ValidatedRequest) (*Result, error) {
	result := &Result{
		TokenType: "Bearer",
		ExpiresIn: int64(req.Client.AccessTokenLifetime / time.Second),
		Scope:     strings.Join(req.GrantedScopes, " "),
	}

	accessToken, err := g.createAccessToken(ctx, req.Client, req.Subject, req.SessionID, req.GrantedScopes)
	if err != nil {
		return nil, err
	}
	result.AccessToken = accessToken

	if g.shouldIssueRefreshToken(req) {
		handle, err := g.issueRefreshToken(ctx, req)
		if err != nil {
			return nil, err
		}
		result.RefreshToken = handle
	}

	if req.IsOpenID && !req.Subject.IsAnonymous() {
		nonce := ""
		if req.AuthorizationCode != nil {
			nonce = req.AuthorizationCode.Nonce
		}
		identityToken, err := g.createIdentityToken(ctx, req, nonce, result.AccessToken)
		if err != nil {
			return nil, err
		}
		result.IdentityToken = identityToken
	}

	g.logger.InfoContext(ctx, "token response issued",
		"client_id", req.Client.ClientID, "grant_type", string(req.GrantType))
	return result, nil
}

func (g *ResponseGenerator) processRefresh(ctx context.Context, req *ValidatedRequest) (*Result, error) {
	old := req.RefreshToken

	subject := old.Subject
	if !req.Client.UpdateAccessTokenClaimsOnRefresh && !old.AccessTokenClaims.IsAnonymous() {
		// Reuse the claims snapshot taken when the refresh token was issued.
		subject = old.AccessTokenClaims
	}

	accessToken, err := g.createAccessToken(ctx, req.Client, subject, req.SessionID, req.GrantedScopes)
	if err != nil {
		return nil, err
	}

	updated := &grants.RefreshToken{
		Handle:            old.Handle,
		ClientID:          old.ClientID,
		Subject:           old.Subject,
		GrantedScopes:     old.GrantedScopes,
		IsOpenID:          old.IsOpenID,
		AccessTokenClaims: subject,
		// Expiration stays absolute: rotation never extends the grant.
		CreationTime: old.CreationTime,
		Lifetime:     old.Lifetime,
	}
	newHandle, err := g.refresh.UpdateRotate(ctx, req.RefreshTokenHandle, updated)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "refresh token rotation failed")
	}

	result := &Result{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(req.Client.AccessTokenLifetime / time.Second),
		RefreshToken: newHandle,
		Scope:        strings.Join(req.GrantedScopes, " "),
	}

	if req.IsOpenID {
		identityToken, err := g.createIdentityToken(ctx, req, "", accessToken)
		if err != nil {
			return nil, err
		}
		result.IdentityToken = identityToken
	}

	g.logger.InfoContext(ctx, "refresh token rotated", "client_id", req.Client.ClientID)
	return result, nil
}

func (g *ResponseGenerator) createAccessToken(ctx context.Context, c *client.Client, subject oidc.ClaimSet, sessionID string, scopes []string) (string, error) {
	if !c.IssuesReferenceTokens() {
		return g.tokens.CreateAccessToken(ctx, jwttoken.AccessTokenRequest{
			ClientID:  c.ClientID,
			Subject:   subject,
			SessionID: sessionID,
			Scopes:    scopes,
			Lifetime:  c.AccessTokenLifetime,
		})
	}

	subjectID := ""
	if !subject.IsAnonymous() {
		var err error
		if subjectID, err = subject.SubjectID(); err != nil {
			return "", err
		}
	}
	ref := &grants.ReferenceToken{
		Handle:       grants.NewHandle(),
		ClientID:     c.ClientID,
		SubjectID:    subjectID,
		Scopes:       scopes,
		Claims:       subject,
		CreationTime: g.now(),
		Lifetime:     c.AccessTokenLifetime,
	}
	if err := g.reference.Store(ctx, ref); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "reference token store failed")
	}
	return ref.Handle, nil
}

// shouldIssueRefreshToken: offline_access must be granted, the client must
// allow it, and there must be a subject to refresh for.
func (g *ResponseGenerator) shouldIssueRefreshToken(req *ValidatedRequest) bool {
	if req.GrantType == oidc.GrantClientCredentials || req.Subject.IsAnonymous() {
		return false
	}
	if !req.Client.AllowOfflineAccess {
		return false
	}
	for _, s := range req.GrantedScopes {
		if s == oidc.ScopeOfflineAccess {
			return true
		}
	}
	return false
}

func (g *ResponseGenerator) issueRefreshToken(ctx context.Context, req *ValidatedRequest) (string, error) {
	token := &grants.RefreshToken{
		Handle:            grants.NewHandle(),
		ClientID:          req.Client.ClientID,
		Subject:           req.Subject,
		GrantedScopes:     req.GrantedScopes,
		IsOpenID:          req.IsOpenID,
		AccessTokenClaims: req.Subject,
		CreationTime:      g.now(),
		Lifetime:          req.Client.RefreshTokenLifetime,
	}
	if err := g.refresh.Store(ctx, token); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "refresh token store failed")
	}
	return token.Handle, nil
}

func (g *ResponseGenerator) createIdentityToken(ctx context.Context, req *ValidatedRequest, nonce, accessToken string) (string, error) {
	profileClaims, err := g.profileClaims(ctx, req)
	if err != nil {
		return "", err
	}
	return g.tokens.CreateIdentityToken(ctx, jwttoken.IdentityTokenRequest{
		ClientID:      req.Client.ClientID,
		Subject:       req.Subject,
		SessionID:     req.SessionID,
		Nonce:         nonce,
		AccessToken:   accessToken,
		ProfileClaims: profileClaims,
		Lifetime:      req.Client.IdentityTokenLifetime,
	})
}

// profileClaims resolves the subject claims granted through identity scopes.
func (g *ResponseGenerator) profileClaims(ctx context.Context, req *ValidatedRequest) ([]oidc.Claim, error) {
	resolved, err := g.resources.FindResourcesByScopeNames(ctx, req.GrantedScopes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "resource lookup failed")
	}

	var claimTypes []string
	seen := make(map[string]bool)
	for _, res := range resolved.FilterEnabled().IdentityResources {
		for _, ct := range res.ClaimTypes {
			if !seen[ct] {
				seen[ct] = true
				claimTypes = append(claimTypes, ct)
			}
		}
	}
	if len(claimTypes) == 0 {
		return nil, nil
	}

	claims, err := g.profile.GetProfileData(ctx, req.Subject, claimTypes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile data lookup failed")
	}
	return claims, nil
}

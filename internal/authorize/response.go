package authorize

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"assent/internal/grants"
	jwttoken "assent/internal/jwt_token"
	"assent/internal/oidc"
	"assent/internal/profile"
	dErrors "assent/pkg/domain-errors"
)

// TokenCreator mints the signed tokens embedded in authorize responses.
type TokenCreator interface {
	CreateAccessToken(ctx context.Context, req jwttoken.AccessTokenRequest) (string, error)
	CreateIdentityToken(ctx context.Context, req jwttoken.IdentityTokenRequest) (string, error)
}

// ResponseGenerator turns a validated, interaction-free request into the
// flow-appropriate authorize response.
type ResponseGenerator struct {
	codes   grants.AuthorizationCodeStore
	tokens  TokenCreator
	profile profile.Service
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type ResponseOption func(*ResponseGenerator)

func WithResponseLogger(logger *slog.Logger) ResponseOption {
	return func(g *ResponseGenerator) {
		g.logger = logger
	}
}

func WithResponseClock(now func() time.Time) ResponseOption {
	return func(g *ResponseGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewResponseGenerator(codes grants.AuthorizationCodeStore, tokens TokenCreator, profileSvc profile.Service, opts ...ResponseOption) *ResponseGenerator {
	g := &ResponseGenerator{
		codes:   codes,
		tokens:  tokens,
		profile: profileSvc,
		logger:  slog.Default(),
		tracer:  otel.Tracer("assent/authorize"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateResponse builds the response for the request's flow. The response
// carries a code, tokens, or both, matching the response type components.
func (g *ResponseGenerator) CreateResponse(ctx context.Context, req *ValidatedRequest) (*Response, error) {
	ctx, span := g.tracer.Start(ctx, "authorize.CreateResponse")
	defer span.End()

	switch req.Flow {
	case oidc.FlowAuthorizationCode:
		return g.createCodeResponse(ctx, req)
	case oidc.FlowImplicit:
		return g.createTokenResponse(ctx, req, "")
	case oidc.FlowHybrid:
		return g.createHybridResponse(ctx, req)
	default:
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unsupported flow %q reached response generation", req.Flow)
	}
}

func (g *ResponseGenerator) createCodeResponse(ctx context.Context, req *ValidatedRequest) (*Response, error) {
	code, err := g.issueCode(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{Request: req, Code: code}
	if err := g.attachSessionState(req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *ResponseGenerator) createHybridResponse(ctx context.Context, req *ValidatedRequest) (*Response, error) {
	code, err := g.issueCode(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := g.createTokenResponse(ctx, req, code)
	if err != nil {
		return nil, err
	}
	resp.Code = code
	return resp, nil
}

// createTokenResponse mints the token components the response type asks for.
// authorizationCode is non-empty only on the hybrid path and feeds c_hash.
func (g *ResponseGenerator) createTokenResponse(ctx context.Context, req *ValidatedRequest, authorizationCode string) (*Response, error) {
	resp := &Response{Request: req}

	if oidc.ResponseTypeHasToken(req.ResponseType) {
		accessToken, err := g.tokens.CreateAccessToken(ctx, jwttoken.AccessTokenRequest{
			ClientID:  req.Client.ClientID,
			Subject:   req.Subject,
			SessionID: req.SessionID,
			Scopes:    req.GrantedScopes,
			Lifetime:  req.Client.AccessTokenLifetime,
		})
		if err != nil {
			return nil, err
		}
		resp.AccessToken = accessToken
		resp.TokenType = "Bearer"
		resp.ExpiresIn = int64(req.Client.AccessTokenLifetime / time.Second)
	}

	if oidc.ResponseTypeHasIDToken(req.ResponseType) {
		// Profile claims travel in the identity token only when it is the
		// sole token issued. When an access token accompanies it, that token
		// is the client's means of fetching claims.
		var profileClaims []oidc.Claim
		if resp.AccessToken == "" {
			var err error
			profileClaims, err = g.profileClaims(ctx, req)
			if err != nil {
				return nil, err
			}
		}
		identityToken, err := g.tokens.CreateIdentityToken(ctx, jwttoken.IdentityTokenRequest{
			ClientID:          req.Client.ClientID,
			Subject:           req.Subject,
			SessionID:         req.SessionID,
			Nonce:             req.Nonce,
			AccessToken:       resp.AccessToken,
			AuthorizationCode: authorizationCode,
			ProfileClaims:     profileClaims,
			Lifetime:          req.Client.IdentityTokenLifetime,
		})
		if err != nil {
			return nil, err
		}
		resp.IdentityToken = identityToken
	}

	if err := g.attachSessionState(req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (g *ResponseGenerator) issueCode(ctx context.Context, req *ValidatedRequest) (string, error) {
	code := &grants.AuthorizationCode{
		Code:                grants.NewHandle(),
		ClientID:            req.Client.ClientID,
		Subject:             req.Subject,
		SessionID:           req.SessionID,
		RequestedScopes:     req.RequestedRawScopes(),
		GrantedScopes:       req.GrantedScopes,
		RedirectURI:         req.RedirectURI,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		WasConsentShown:     req.WasConsentShown,
		IsOpenID:            req.IsOpenIDRequest,
		CreationTime:        g.now(),
		Lifetime:            req.Client.AuthorizationCodeLifetime,
	}
	if err := g.codes.Store(ctx, code); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "authorization code store failed")
	}

	g.logger.InfoContext(ctx, "authorization code issued",
		"client_id", req.Client.ClientID, "session_id", req.SessionID)
	return code.Code, nil
}

// profileClaims resolves the subject claims granted through identity scopes.
func (g *ResponseGenerator) profileClaims(ctx context.Context, req *ValidatedRequest) ([]oidc.Claim, error) {
	var claimTypes []string
	seen := make(map[string]bool)
	for _, res := range req.Scopes.Resources.IdentityResources {
		granted := false
		for _, raw := range req.GrantedScopes {
			if raw == res.Name {
				granted = true
				break
			}
		}
		if !granted {
			continue
		}
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

// attachSessionState adds the session-management value to OpenID responses.
func (g *ResponseGenerator) attachSessionState(req *ValidatedRequest, resp *Response) error {
	if !req.IsOpenIDRequest || req.SessionID == "" {
		return nil
	}
	sessionState, err := ComputeSessionState(req.Client.ClientID, req.RedirectURI, req.SessionID)
	if err != nil {
		return err
	}
	resp.SessionState = sessionState
	return nil
}

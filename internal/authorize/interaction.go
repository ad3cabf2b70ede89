package authorize

import (
	"context"
	"log/slog"
	"time"

	"assent/internal/consent"
	"assent/internal/oidc"
	"assent/internal/profile"
	"assent/internal/resource"
	dErrors "assent/pkg/domain-errors"
)

// InteractionGenerator decides whether the authorize request can proceed to
// response generation or must stop for login or consent first.
type InteractionGenerator struct {
	profile profile.Service
	consent *consent.Service
	logger  *slog.Logger
	now     func() time.Time
}

type InteractionOption func(*InteractionGenerator)

func WithInteractionLogger(logger *slog.Logger) InteractionOption {
	return func(g *InteractionGenerator) {
		g.logger = logger
	}
}

func WithInteractionClock(now func() time.Time) InteractionOption {
	return func(g *InteractionGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewInteractionGenerator(profileSvc profile.Service, consentSvc *consent.Service, opts ...InteractionOption) *InteractionGenerator {
	g := &InteractionGenerator{
		profile: profileSvc,
		consent: consentSvc,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProcessInteraction runs the login checks and then the consent check.
// Outcomes are mutually exclusive: a request that needs login never also
// reports consent in the same pass.
func (g *InteractionGenerator) ProcessInteraction(ctx context.Context, req *ValidatedRequest) (InteractionResponse, error) {
	resp, err := g.processLogin(ctx, req)
	if err != nil || !resp.IsContinue() {
		return resp, err
	}
	return g.processConsent(ctx, req)
}

func (g *InteractionGenerator) processLogin(ctx context.Context, req *ValidatedRequest) (InteractionResponse, error) {
	// An explicit login or select_account prompt forces re-authentication
	// exactly once; the satisfied prompt is removed so the re-entry after
	// login does not loop.
	if req.HasPrompt(oidc.PromptLogin) || req.HasPrompt(oidc.PromptSelectAccount) {
		g.logger.DebugContext(ctx, "login prompt requested", "client_id", req.Client.ClientID)
		req.RemovePrompt(oidc.PromptLogin)
		req.RemovePrompt(oidc.PromptSelectAccount)
		return loginRequired(), nil
	}

	if req.Subject.IsAnonymous() {
		return g.loginOrError(ctx, req, "no authenticated user")
	}

	active, err := g.profile.IsActive(ctx, req.Subject, req.Client.ClientID)
	if err != nil {
		return InteractionResponse{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile activity check failed")
	}
	if !active {
		return g.loginOrError(ctx, req, "user is not active")
	}

	currentIdP, err := req.Subject.IdentityProvider()
	if err != nil {
		return InteractionResponse{}, err
	}

	if req.IdPHint != "" && req.IdPHint != currentIdP {
		return g.loginOrError(ctx, req, "current idp does not match requested idp")
	}
	if !req.Client.IdentityProviderAllowed(currentIdP) {
		return g.loginOrError(ctx, req, "current idp not allowed for client")
	}
	if currentIdP == oidc.LocalIdentityProvider && !req.Client.EnableLocalLogin {
		return g.loginOrError(ctx, req, "client does not allow local login")
	}

	if req.MaxAge != nil {
		authTime, err := req.Subject.AuthTime()
		if err != nil {
			return InteractionResponse{}, err
		}
		if g.now().After(authTime.Add(*req.MaxAge)) {
			return g.loginOrError(ctx, req, "authentication is older than max_age")
		}
	}

	return InteractionResponse{}, nil
}

func (g *InteractionGenerator) loginOrError(ctx context.Context, req *ValidatedRequest, reason string) (InteractionResponse, error) {
	g.logger.DebugContext(ctx, "login interaction required",
		"client_id", req.Client.ClientID, "reason", reason)
	if req.HasPrompt(oidc.PromptNone) {
		return interactionError(oidc.ErrLoginRequired, ""), nil
	}
	return loginRequired(), nil
}

func (g *InteractionGenerator) processConsent(ctx context.Context, req *ValidatedRequest) (InteractionResponse, error) {
	subjectID, err := req.Subject.SubjectID()
	if err != nil {
		return InteractionResponse{}, err
	}

	required, err := g.consent.RequiresConsent(ctx, subjectID, req.Client, req.RequestedRawScopes())
	if err != nil {
		return InteractionResponse{}, err
	}
	if !required && !req.HasPrompt(oidc.PromptConsent) {
		return InteractionResponse{}, nil
	}

	if req.HasPrompt(oidc.PromptNone) {
		return interactionError(oidc.ErrConsentRequired, ""), nil
	}
	return consentRequired(), nil
}

// firstMissingRequiredScope returns the name of a requested scope that is
// marked required but absent from the granted set. Required scopes cannot be
// deselected on the consent prompt.
func firstMissingRequiredScope(resources resource.Resources, granted []string) string {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, name := range granted {
		grantedSet[name] = struct{}{}
	}
	for _, res := range resources.IdentityResources {
		if res.Required {
			if _, ok := grantedSet[res.Name]; !ok {
				return res.Name
			}
		}
	}
	for _, scope := range resources.APIScopes {
		if scope.Required {
			if _, ok := grantedSet[scope.Name]; !ok {
				return scope.Name
			}
		}
	}
	return ""
}

// ProcessConsent applies the outcome of a consent prompt to the request. A
// nil response means the prompt has not been answered yet.
func (g *InteractionGenerator) ProcessConsent(ctx context.Context, req *ValidatedRequest, response *consent.Response) (InteractionResponse, error) {
	if response == nil {
		return consentRequired(), nil
	}
	if !response.Granted {
		g.logger.InfoContext(ctx, "consent denied",
			"client_id", req.Client.ClientID)
		return interactionError(oidc.ErrAccessDenied, ""), nil
	}
	if len(response.ScopesConsented) == 0 {
		return interactionError(oidc.ErrAccessDenied, "no scopes were granted"), nil
	}

	granted := make([]string, 0, len(req.GrantedScopes))
	for _, raw := range req.RequestedRawScopes() {
		if response.ScopeConsented(raw) {
			granted = append(granted, raw)
		}
	}
	if len(granted) == 0 {
		return interactionError(oidc.ErrAccessDenied, "no requested scopes were granted"), nil
	}
	if missing := firstMissingRequiredScope(req.Scopes.Resources, granted); missing != "" {
		g.logger.InfoContext(ctx, "required scope withheld from consent",
			"client_id", req.Client.ClientID, "scope", missing)
		return interactionError(oidc.ErrAccessDenied, "required scope was not granted: "+missing), nil
	}
	req.GrantedScopes = granted
	req.WasConsentShown = true
	req.RemovePrompt(oidc.PromptConsent)

	subjectID, err := req.Subject.SubjectID()
	if err != nil {
		return InteractionResponse{}, err
	}
	remembered := response.ScopesConsented
	if !response.RememberConsent {
		// An explicit "do not remember" clears any prior grant.
		remembered = nil
	}
	if err := g.consent.UpdateConsent(ctx, subjectID, req.Client, remembered); err != nil {
		return InteractionResponse{}, err
	}

	return InteractionResponse{}, nil
}

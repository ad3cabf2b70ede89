package authorize

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"assent/internal/client"
	"assent/internal/oidc"
	"assent/internal/resource"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// idpHintPrefix marks an acr_values entry that selects an identity provider
// instead of an authentication context class.
const idpHintPrefix = "idp:"

// CustomValidator is the host extension point, invoked as the last
// validation step with the fully populated request. Returning a non-nil
// *Error rejects the request with that error.
type CustomValidator interface {
	ValidateAuthorizeRequest(ctx context.Context, req *ValidatedRequest) (*Error, error)
}

// ScopeValidator validates requested scopes against a client and the
// resource configuration.
type ScopeValidator interface {
	ValidateRequestedScopes(ctx context.Context, scope string, c resource.ClientScopes) (resource.ValidatedScopes, error)
}

// Validator checks authorize-endpoint requests in a fixed parameter order so
// the first failing parameter determines the reported error.
type Validator struct {
	clients *client.Validator
	scopes  ScopeValidator
	custom  CustomValidator
	logger  *slog.Logger
	tracer  trace.Tracer
}

type ValidatorOption func(*Validator)

func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithCustomValidator installs the host validation hook.
func WithCustomValidator(custom CustomValidator) ValidatorOption {
	return func(v *Validator) {
		v.custom = custom
	}
}

func NewValidator(clients *client.Validator, scopes ScopeValidator, opts ...ValidatorOption) *Validator {
	v := &Validator{
		clients: clients,
		scopes:  scopes,
		logger:  slog.Default(),
		tracer:  otel.Tracer("assent/authorize"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the full parameter check. On failure it returns a protocol
// *Error; the plain error return is reserved for infrastructure failures.
//
// Errors raised before the redirect URI is verified are user-facing only;
// later errors carry redirect details so the transport can deliver them to
// the relying party.
func (v *Validator) Validate(ctx context.Context, req Request) (*ValidatedRequest, *Error, error) {
	ctx, span := v.tracer.Start(ctx, "authorize.Validate")
	defer span.End()

	validated := &ValidatedRequest{
		Raw:       req.Parameters,
		Subject:   req.Subject,
		SessionID: req.SessionID,
	}
	if validated.SessionID == "" {
		validated.SessionID = uuid.NewString()
	}
	validated.State = req.Parameters.Get("state")

	for _, step := range []func(context.Context, url.Values, *ValidatedRequest) *Error{
		v.validateClient,
		v.validateResponseType,
		v.validateFlowAllowed,
		v.validateRedirectURI,
	} {
		if protoErr := step(ctx, req.Parameters, validated); protoErr != nil {
			return nil, protoErr, nil
		}
	}

	for _, step := range []func(context.Context, url.Values, *ValidatedRequest) (*Error, error){
		v.validateScopes,
		v.validateNonce,
		v.validateResponseMode,
		v.validateMaxAge,
		v.validatePrompt,
		v.validatePKCE,
		v.runCustomValidator,
	} {
		protoErr, err := step(ctx, req.Parameters, validated)
		if err != nil {
			return nil, nil, err
		}
		if protoErr != nil {
			return nil, protoErr, nil
		}
	}

	span.SetAttributes(
		attribute.String("client_id", validated.Client.ClientID),
		attribute.String("flow", string(validated.Flow)),
	)
	return validated, nil, nil
}

func (v *Validator) validateClient(ctx context.Context, params url.Values, req *ValidatedRequest) *Error {
	clientID := params.Get("client_id")
	if clientID == "" {
		return userError(oidc.ErrInvalidRequest, "client_id is missing")
	}

	c, err := v.clients.Load(ctx, clientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.logger.WarnContext(ctx, "unknown or disabled client on authorize endpoint", "client_id", clientID)
			return userError(oidc.ErrInvalidRequest, "unknown client")
		}
		v.logger.ErrorContext(ctx, "client lookup failed", "client_id", clientID, "error", err)
		return userError(oidc.ErrServerError, "")
	}

	req.Client = c
	return nil
}

func (v *Validator) validateResponseType(ctx context.Context, params url.Values, req *ValidatedRequest) *Error {
	responseType := oidc.CanonicalizeResponseType(params.Get("response_type"))
	if responseType == "" {
		return userError(oidc.ErrInvalidRequest, "response_type is missing")
	}

	flow, ok := oidc.FlowForResponseType(responseType)
	if !ok {
		v.logger.WarnContext(ctx, "unsupported response_type",
			"client_id", req.Client.ClientID, "response_type", responseType)
		return userError(oidc.ErrUnsupportedResponseType, "response type not supported")
	}

	req.ResponseType = responseType
	req.Flow = flow
	return nil
}

func (v *Validator) validateFlowAllowed(ctx context.Context, params url.Values, req *ValidatedRequest) *Error {
	if !req.Client.FlowAllowed(req.Flow) {
		v.logger.WarnContext(ctx, "flow not allowed for client",
			"client_id", req.Client.ClientID, "flow", string(req.Flow))
		return userError(oidc.ErrUnauthorizedClient, "response type not allowed for client")
	}
	return nil
}

func (v *Validator) validateRedirectURI(ctx context.Context, params url.Values, req *ValidatedRequest) *Error {
	redirectURI := params.Get("redirect_uri")
	if redirectURI == "" {
		return userError(oidc.ErrInvalidRequest, "redirect_uri is missing")
	}
	if !req.Client.RedirectURIAllowed(redirectURI) {
		v.logger.WarnContext(ctx, "redirect_uri not registered",
			"client_id", req.Client.ClientID, "redirect_uri", redirectURI)
		return userError(oidc.ErrInvalidRequest, "redirect_uri is not registered for client")
	}

	req.RedirectURI = redirectURI
	// An explicit response_mode is validated in a later step.
	req.ResponseMode = oidc.DefaultResponseMode(req.Flow)
	return nil
}

func (v *Validator) validateScopes(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	scope := params.Get("scope")

	validatedScopes, err := v.scopes.ValidateRequestedScopes(ctx, scope, req.Client)
	if err != nil {
		var invalidScope *resource.InvalidScopeError
		if errors.As(err, &invalidScope) {
			return req.clientError(oidc.ErrInvalidScope, "scope not allowed: "+invalidScope.Scope), nil
		}
		return nil, err
	}

	req.Scopes = validatedScopes
	req.IsOpenIDRequest = validatedScopes.IsOpenID()
	req.GrantedScopes = req.RequestedRawScopes()

	if !req.IsOpenIDRequest && oidc.ResponseTypeHasIDToken(req.ResponseType) {
		return req.clientError(oidc.ErrInvalidRequest, "response type requires openid scope"), nil
	}
	if req.IsOpenIDRequest && !oidc.ResponseTypeHasIDToken(req.ResponseType) && !oidc.ResponseTypeHasCode(req.ResponseType) {
		// A pure token response has no channel that could ever deliver an
		// identity token for the openid scope.
		return req.clientError(oidc.ErrInvalidRequest, "openid scope requires a response type that can issue an identity token"), nil
	}
	return nil, nil
}

func (v *Validator) validateNonce(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	nonce := params.Get("nonce")
	if nonce == "" {
		// Nonce is mandatory whenever an id_token comes back directly from
		// the authorize endpoint.
		if req.IsOpenIDRequest && oidc.ResponseTypeHasIDToken(req.ResponseType) {
			return req.clientError(oidc.ErrInvalidRequest, "nonce is required for implicit and hybrid flows"), nil
		}
		return nil, nil
	}
	if len(nonce) > 300 {
		return req.clientError(oidc.ErrInvalidRequest, "nonce is too long"), nil
	}
	req.Nonce = nonce
	return nil, nil
}

func (v *Validator) validateResponseMode(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	mode := params.Get("response_mode")
	if mode == "" {
		return nil, nil
	}

	responseMode := oidc.ResponseMode(mode)
	if !oidc.ResponseModeAllowed(req.Flow, responseMode) {
		v.logger.WarnContext(ctx, "response_mode not allowed for flow",
			"client_id", req.Client.ClientID, "response_mode", mode, "flow", string(req.Flow))
		return req.clientError(oidc.ErrInvalidRequest, "invalid response_mode for flow"), nil
	}
	req.ResponseMode = responseMode
	return nil, nil
}

func (v *Validator) validateMaxAge(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	raw := params.Get("max_age")
	if raw == "" {
		return nil, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return req.clientError(oidc.ErrInvalidRequest, "invalid max_age"), nil
	}
	maxAge := time.Duration(seconds) * time.Second
	req.MaxAge = &maxAge
	return nil, nil
}

func (v *Validator) validatePrompt(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	raw := params.Get("prompt")
	if raw != "" {
		var modes []oidc.PromptMode
		for _, p := range strings.Fields(raw) {
			mode := oidc.PromptMode(p)
			if !mode.IsValid() {
				return req.clientError(oidc.ErrInvalidRequest, "unsupported prompt mode"), nil
			}
			modes = append(modes, mode)
		}
		// none must stand alone: combining it with an interactive prompt is
		// contradictory.
		if len(modes) > 1 {
			for _, m := range modes {
				if m == oidc.PromptNone {
					return req.clientError(oidc.ErrInvalidRequest, "prompt=none cannot be combined with other prompt modes"), nil
				}
			}
		}
		req.PromptModes = modes
	}

	req.LoginHint = params.Get("login_hint")
	for _, acr := range strings.Fields(params.Get("acr_values")) {
		if strings.HasPrefix(acr, idpHintPrefix) {
			req.IdPHint = strings.TrimPrefix(acr, idpHintPrefix)
			continue
		}
		req.AcrValues = append(req.AcrValues, acr)
	}
	return nil, nil
}

func (v *Validator) validatePKCE(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	challenge := params.Get("code_challenge")
	method := params.Get("code_challenge_method")

	if challenge == "" {
		if method != "" {
			return req.clientError(oidc.ErrInvalidRequest, "code_challenge_method supplied without code_challenge"), nil
		}
		if req.Client.PKCERequired(req.Flow) {
			v.logger.WarnContext(ctx, "missing code challenge", "client_id", req.Client.ClientID)
			return req.clientError(oidc.ErrInvalidRequest, "code challenge required"), nil
		}
		return nil, nil
	}

	if len(challenge) < oidc.CodeVerifierMinLength || len(challenge) > oidc.CodeVerifierMaxLength {
		return req.clientError(oidc.ErrInvalidRequest, "invalid code challenge length"), nil
	}

	challengeMethod := oidc.CodeChallengePlain
	if method != "" {
		challengeMethod = oidc.CodeChallengeMethod(method)
		if !challengeMethod.IsValid() {
			return req.clientError(oidc.ErrInvalidRequest, "Transform algorithm not supported"), nil
		}
	}
	if challengeMethod == oidc.CodeChallengePlain && !req.Client.AllowPlainTextPKCE {
		return req.clientError(oidc.ErrInvalidRequest, "Transform algorithm not supported"), nil
	}

	req.CodeChallenge = challenge
	req.CodeChallengeMethod = challengeMethod
	return nil, nil
}

func (v *Validator) runCustomValidator(ctx context.Context, params url.Values, req *ValidatedRequest) (*Error, error) {
	if v.custom == nil {
		return nil, nil
	}
	protoErr, err := v.custom.ValidateAuthorizeRequest(ctx, req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "custom authorize validation failed")
	}
	return protoErr, nil
}

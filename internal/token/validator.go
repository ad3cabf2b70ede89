package token

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"assent/internal/client"
	"assent/internal/grants"
	"assent/internal/oidc"
	"assent/internal/profile"
	"assent/internal/resource"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

// ScopeValidator validates requested scopes against a client and the
// resource configuration.
type ScopeValidator interface {
	ValidateRequestedScopes(ctx context.Context, scope string, c resource.ClientScopes) (resource.ValidatedScopes, error)
}

// PollingThrottle rate-limits device-code polling. ShouldSlowDown reports
// whether the device polled faster than its assigned interval allows.
type PollingThrottle interface {
	ShouldSlowDown(ctx context.Context, deviceCode string, interval time.Duration) (bool, error)
}

// ExtensionGrantValidator handles one registered extension grant type.
type ExtensionGrantValidator interface {
	GrantType() string
	// ValidateGrant authenticates the grant and returns the subject it
	// represents, or a protocol error.
	ValidateGrant(ctx context.Context, req *ValidatedRequest) (oidc.ClaimSet, *Error, error)
}

// CustomValidator is the host extension point, invoked after grant-specific
// validation with the fully populated request.
type CustomValidator interface {
	ValidateTokenRequest(ctx context.Context, req *ValidatedRequest) (*Error, error)
}

// Validator dispatches token requests on the grant type and runs the
// matching validation path. The client has already been authenticated by the
// time Validate is called.
type Validator struct {
	scopes    ScopeValidator
	codes     grants.AuthorizationCodeStore
	refresh   grants.RefreshTokenStore
	devices   grants.DeviceFlowStore
	profile   profile.Service
	passwords profile.PasswordValidator
	throttle  PollingThrottle
	extension map[string]ExtensionGrantValidator
	custom    CustomValidator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type ValidatorOption func(*Validator)

func WithValidatorLogger(logger *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithPasswordValidator enables the resource-owner password grant.
func WithPasswordValidator(passwords profile.PasswordValidator) ValidatorOption {
	return func(v *Validator) {
		v.passwords = passwords
	}
}

// WithPollingThrottle enables slow_down enforcement for device-code polling.
func WithPollingThrottle(throttle PollingThrottle) ValidatorOption {
	return func(v *Validator) {
		v.throttle = throttle
	}
}

// WithExtensionGrant registers an extension grant validator under its grant
// type name.
func WithExtensionGrant(validator ExtensionGrantValidator) ValidatorOption {
	return func(v *Validator) {
		v.extension[validator.GrantType()] = validator
	}
}

// WithCustomValidator installs the host validation hook.
func WithCustomValidator(custom CustomValidator) ValidatorOption {
	return func(v *Validator) {
		v.custom = custom
	}
}

func NewValidator(
	scopes ScopeValidator,
	codes grants.AuthorizationCodeStore,
	refresh grants.RefreshTokenStore,
	devices grants.DeviceFlowStore,
	profileSvc profile.Service,
	opts ...ValidatorOption,
) *Validator {
	v := &Validator{
		scopes:    scopes,
		codes:     codes,
		refresh:   refresh,
		devices:   devices,
		profile:   profileSvc,
		extension: make(map[string]ExtensionGrantValidator),
		logger:    slog.Default(),
		tracer:    otel.Tracer("assent/token"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks a token request for the authenticated client. A non-nil
// *Error is a protocol rejection; the plain error return is reserved for
// infrastructure failures.
func (v *Validator) Validate(ctx context.Context, c *client.Client, params url.Values) (*ValidatedRequest, *Error, error) {
	ctx, span := v.tracer.Start(ctx, "token.Validate")
	defer span.End()

	rawGrant := params.Get("grant_type")
	if rawGrant == "" {
		return nil, protocolError(oidc.ErrInvalidRequest, "grant_type is missing"), nil
	}

	req := &ValidatedRequest{
		Client: c,
		Raw:    params,
	}

	grantType := oidc.GrantType(rawGrant)
	if !grantType.IsValid() || grantType == oidc.GrantExtension {
		// Not a built-in grant: it may be a registered extension.
		req.GrantType = oidc.GrantExtension
		req.ExtensionGrant = rawGrant
		protoErr, err := v.validateExtension(ctx, req)
		return v.finish(ctx, span, req, protoErr, err)
	}
	req.GrantType = grantType

	if !c.GrantAllowed(grantType) {
		v.logger.WarnContext(ctx, "grant type not allowed for client",
			"client_id", c.ClientID, "grant_type", rawGrant)
		return nil, protocolError(oidc.ErrUnauthorizedClient, "grant type not allowed for client"), nil
	}

	var protoErr *Error
	var err error
	switch grantType {
	case oidc.GrantAuthorizationCode:
		protoErr, err = v.validateAuthorizationCode(ctx, req)
	case oidc.GrantRefreshToken:
		protoErr, err = v.validateRefreshToken(ctx, req)
	case oidc.GrantClientCredentials:
		protoErr, err = v.validateClientCredentials(ctx, req)
	case oidc.GrantPassword:
		protoErr, err = v.validatePassword(ctx, req)
	case oidc.GrantDeviceCode:
		protoErr, err = v.validateDeviceCode(ctx, req)
	default:
		// implicit and hybrid never reach the token endpoint as grant types.
		return nil, protocolError(oidc.ErrUnsupportedGrantType, "grant type not supported"), nil
	}
	if err != nil || protoErr != nil {
		return nil, protoErr, err
	}

	return v.finish(ctx, span, req, nil, nil)
}

func (v *Validator) finish(ctx context.Context, span trace.Span, req *ValidatedRequest, protoErr *Error, err error) (*ValidatedRequest, *Error, error) {
	if err != nil || protoErr != nil {
		return nil, protoErr, err
	}

	if v.custom != nil {
		protoErr, err = v.custom.ValidateTokenRequest(ctx, req)
		if err != nil {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "custom token validation failed")
		}
		if protoErr != nil {
			return nil, protoErr, nil
		}
	}

	span.SetAttributes(
		attribute.String("client_id", req.Client.ClientID),
		attribute.String("grant_type", string(req.GrantType)),
	)
	return req, nil, nil
}

func (v *Validator) validateAuthorizationCode(ctx context.Context, req *ValidatedRequest) (*Error, error) {
	codeValue := req.Raw.Get("code")
	if codeValue == "" {
		return protocolError(oidc.ErrInvalidRequest, "code is missing"), nil
	}

	// Consume is atomic: a replayed code is indistinguishable from an
	// unknown one.
	code, err := v.codes.Consume(ctx, codeValue)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.logger.WarnContext(ctx, "unknown or already used authorization code",
				"client_id", req.Client.ClientID)
			return protocolError(oidc.ErrInvalidGrant, "invalid authorization code"), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "authorization code lookup failed")
	}

	if code.ClientID != req.Client.ClientID {
		v.logger.WarnContext(ctx, "authorization code presented by wrong client",
			"client_id", req.Client.ClientID, "code_client_id", code.ClientID)
		return protocolError(oidc.ErrInvalidGrant, "invalid authorization code"), nil
	}
	if code.IsExpired(v.now()) {
		return protocolError(oidc.ErrInvalidGrant, "authorization code expired"), nil
	}
	if req.Raw.Get("redirect_uri") != code.RedirectURI {
		v.logger.WarnContext(ctx, "redirect_uri mismatch on code redemption",
			"client_id", req.Client.ClientID)
		return protocolError(oidc.ErrInvalidGrant, "invalid redirect_uri"), nil
	}

	if protoErr := v.verifyPKCE(ctx, req, code); protoErr != nil {
		return protoErr, nil
	}

	active, err := v.profile.IsActive(ctx, code.Subject, req.Client.ClientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile activity check failed")
	}
	if !active {
		v.logger.WarnContext(ctx, "subject no longer active at code redemption",
			"client_id", req.Client.ClientID)
		return protocolError(oidc.ErrInvalidGrant, "invalid authorization code"), nil
	}

	req.AuthorizationCode = code
	req.Subject = code.Subject
	req.SessionID = code.SessionID
	req.GrantedScopes = code.GrantedScopes
	req.IsOpenID = code.IsOpenID
	return nil, nil
}

func (v *Validator) verifyPKCE(ctx context.Context, req *ValidatedRequest, code *grants.AuthorizationCode) *Error {
	verifier := req.Raw.Get("code_verifier")

	if code.CodeChallenge == "" {
		if req.Client.PKCERequired(oidc.FlowAuthorizationCode) {
			// The code predates a config change that turned PKCE on.
			return protocolError(oidc.ErrInvalidGrant, "code challenge required")
		}
		if verifier != "" {
			return protocolError(oidc.ErrInvalidGrant, "no code challenge to verify against")
		}
		return nil
	}

	if verifier == "" {
		return protocolError(oidc.ErrInvalidGrant, "code verifier is missing")
	}
	if !VerifyCodeVerifier(code.CodeChallenge, code.CodeChallengeMethod, verifier) {
		v.logger.WarnContext(ctx, "code verifier check failed",
			"client_id", req.Client.ClientID, "method", string(code.CodeChallengeMethod))
		return protocolError(oidc.ErrInvalidGrant, "invalid code verifier")
	}
	return nil
}

func (v *Validator) validateRefreshToken(ctx context.Context, req *ValidatedRequest) (*Error, error) {
	handle := req.Raw.Get("refresh_token")
	if handle == "" {
		return protocolError(oidc.ErrInvalidRequest, "refresh_token is missing"), nil
	}

	token, err := v.refresh.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.logger.WarnContext(ctx, "unknown refresh token", "client_id", req.Client.ClientID)
			return protocolError(oidc.ErrInvalidGrant, "invalid refresh token"), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "refresh token lookup failed")
	}

	if token.ClientID != req.Client.ClientID {
		v.logger.WarnContext(ctx, "refresh token presented by wrong client",
			"client_id", req.Client.ClientID, "token_client_id", token.ClientID)
		return protocolError(oidc.ErrInvalidGrant, "invalid refresh token"), nil
	}
	if token.IsExpired(v.now()) {
		if err := v.refresh.Remove(ctx, handle); err != nil {
			v.logger.ErrorContext(ctx, "expired refresh token cleanup failed", "error", err)
		}
		return protocolError(oidc.ErrInvalidGrant, "refresh token expired"), nil
	}

	active, err := v.profile.IsActive(ctx, token.Subject, req.Client.ClientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile activity check failed")
	}
	if !active {
		return protocolError(oidc.ErrInvalidGrant, "invalid refresh token"), nil
	}

	granted := token.GrantedScopes
	if scope := req.Raw.Get("scope"); scope != "" {
		// A narrowed scope must be a subset of the original grant.
		var narrowed []string
		for _, name := range strings.Fields(scope) {
			found := false
			for _, g := range token.GrantedScopes {
				if g == name {
					found = true
					break
				}
			}
			if !found {
				return protocolError(oidc.ErrInvalidScope, "scope exceeds original grant: "+name), nil
			}
			narrowed = append(narrowed, name)
		}
		granted = narrowed
	}

	req.RefreshToken = token
	req.RefreshTokenHandle = handle
	req.Subject = token.Subject
	req.GrantedScopes = granted
	req.IsOpenID = token.IsOpenID
	return nil, nil
}

func (v *Validator) validateClientCredentials(ctx context.Context, req *ValidatedRequest) (*Error, error) {
	validatedScopes, protoErr, err := v.validateRequestScopes(ctx, req)
	if err != nil || protoErr != nil {
		return protoErr, err
	}
	if validatedScopes.IsOpenID() {
		return protocolError(oidc.ErrInvalidScope, "openid scope not allowed for client credentials"), nil
	}
	if validatedScopes.Resources.OfflineAccess {
		return protocolError(oidc.ErrInvalidScope, "offline_access not allowed for client credentials"), nil
	}

	req.GrantedScopes = rawScopes(validatedScopes)
	return nil, nil
}

func (v *Validator) validatePassword(ctx context.Context, req *ValidatedRequest) (*Error, error) {
	if v.passwords == nil {
		return protocolError(oidc.ErrUnsupportedGrantType, "grant type not supported"), nil
	}

	username := req.Raw.Get("username")
	password := req.Raw.Get("password")
	if username == "" || password == "" {
		return protocolError(oidc.ErrInvalidGrant, "invalid username or password"), nil
	}

	validatedScopes, protoErr, err := v.validateRequestScopes(ctx, req)
	if err != nil || protoErr != nil {
		return protoErr, err
	}

	subject, err := v.passwords.ValidateCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			v.logger.WarnContext(ctx, "password grant credential check failed",
				"client_id", req.Client.ClientID, "username", username)
			return protocolError(oidc.ErrInvalidGrant, "invalid username or password"), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "credential validation failed")
	}

	req.Subject = subject
	req.GrantedScopes = rawScopes(validatedScopes)
	req.IsOpenID = validatedScopes.IsOpenID()
	return nil, nil
}

func (v *Validator) validateDeviceCode(ctx context.Context, req *ValidatedRequest) (*Error, error) {
	handle := req.Raw.Get("device_code")
	if handle == "" {
		return protocolError(oidc.ErrInvalidRequest, "device_code is missing"), nil
	}

	code, err := v.devices.FindByDeviceCode(ctx, handle)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return protocolError(oidc.ErrInvalidGrant, "invalid device code"), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "device code lookup failed")
	}

	if code.ClientID != req.Client.ClientID {
		v.logger.WarnContext(ctx, "device code presented by wrong client",
			"client_id", req.Client.ClientID, "code_client_id", code.ClientID)
		return protocolError(oidc.ErrInvalidGrant, "invalid device code"), nil
	}

	if v.throttle != nil {
		tooFast, err := v.throttle.ShouldSlowDown(ctx, handle, code.Interval)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "polling throttle check failed")
		}
		if tooFast {
			return protocolError(oidc.ErrSlowDown, ""), nil
		}
	}

	if code.IsExpired(v.now()) {
		if err := v.devices.RemoveByDeviceCode(ctx, handle); err != nil {
			v.logger.ErrorContext(ctx, "expired device code cleanup failed", "error", err)
		}
		return protocolError(oidc.ErrExpiredToken, ""), nil
	}

	switch code.State {
	case grants.DeviceCodePending:
		return protocolError(oidc.ErrAuthorizationPending, ""), nil
	case grants.DeviceCodeDenied:
		if err := v.devices.RemoveByDeviceCode(ctx, handle); err != nil {
			v.logger.ErrorContext(ctx, "denied device code cleanup failed", "error", err)
		}
		return protocolError(oidc.ErrAccessDenied, ""), nil
	case grants.DeviceCodeAuthorized:
		// fall through to redemption
	default:
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown device code state %q", code.State)
	}

	active, err := v.profile.IsActive(ctx, code.Subject, req.Client.ClientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "profile activity check failed")
	}
	if !active {
		return protocolError(oidc.ErrInvalidGrant, "invalid device code"), nil
	}

	// One-time redemption: remove before issuing so a second poll replays
	// into invalid_grant.
	if err := v.devices.RemoveByDeviceCode(ctx, handle); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "device code redemption failed")
	}

	req.DeviceCode = code
	req.Subject = code.Subject
	req.SessionID = code.SessionID
	req.GrantedScopes = code.GrantedScopes
	req.IsOpenID = code.IsOpenID
	return nil, nil
}

func (v *Validator) validateExtension(ctx context.Context, req *ValidatedRequest) (*Error, error) {
	validator, registered := v.extension[req.ExtensionGrant]
	if !registered {
		return protocolError(oidc.ErrUnsupportedGrantType, "grant type not supported"), nil
	}
	if !req.Client.ExtensionGrantAllowed(req.ExtensionGrant) {
		v.logger.WarnContext(ctx, "extension grant not allowed for client",
			"client_id", req.Client.ClientID, "grant_type", req.ExtensionGrant)
		return protocolError(oidc.ErrUnauthorizedClient, "grant type not allowed for client"), nil
	}

	validatedScopes, protoErr, err := v.validateRequestScopes(ctx, req)
	if err != nil || protoErr != nil {
		return protoErr, err
	}

	subject, protoErr, err := validator.ValidateGrant(ctx, req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "extension grant validation failed")
	}
	if protoErr != nil {
		return protoErr, nil
	}

	req.Subject = subject
	req.GrantedScopes = rawScopes(validatedScopes)
	req.IsOpenID = validatedScopes.IsOpenID()
	return nil, nil
}

func (v *Validator) validateRequestScopes(ctx context.Context, req *ValidatedRequest) (resource.ValidatedScopes, *Error, error) {
	validatedScopes, err := v.scopes.ValidateRequestedScopes(ctx, req.Raw.Get("scope"), req.Client)
	if err != nil {
		var invalidScope *resource.InvalidScopeError
		if errors.As(err, &invalidScope) {
			return resource.ValidatedScopes{}, protocolError(oidc.ErrInvalidScope, "scope not allowed: "+invalidScope.Scope), nil
		}
		return resource.ValidatedScopes{}, nil, err
	}
	return validatedScopes, nil, nil
}

func rawScopes(validated resource.ValidatedScopes) []string {
	out := make([]string, 0, len(validated.ParsedScopes))
	for _, s := range validated.ParsedScopes {
		out = append(out, s.Raw)
	}
	return out
}

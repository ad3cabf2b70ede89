// Package oidc holds the closed protocol vocabulary: grant types, response
// types, flows, response modes, prompt modes, and the error-code taxonomy.
// Everything here is a compile-time table; nothing reads runtime state.
package oidc

import "strings"

// GrantType enumerates the token-endpoint grants the engine understands.
// Extension grants carry their registered name in the Extension field of the
// token request; they all map to GrantExtension here so switches stay
// exhaustive.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantHybrid            GrantType = "hybrid"
	GrantClientCredentials GrantType = "client_credentials"
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
	GrantExtension         GrantType = "extension"
)

func (g GrantType) IsValid() bool {
	switch g {
	case GrantAuthorizationCode, GrantImplicit, GrantHybrid, GrantClientCredentials,
		GrantPassword, GrantRefreshToken, GrantDeviceCode, GrantExtension:
		return true
	}
	return false
}

// Flow is derived from the response type and drives authorize-response
// generation.
type Flow string

const (
	FlowAuthorizationCode Flow = "authorization_code"
	FlowImplicit          Flow = "implicit"
	FlowHybrid            Flow = "hybrid"
)

// Supported response types. Token order is significant: unconventional
// orderings such as "token id_token" are not in this table and are rejected.
const (
	ResponseTypeCode             = "code"
	ResponseTypeToken            = "token"
	ResponseTypeIDToken          = "id_token"
	ResponseTypeIDTokenToken     = "id_token token"
	ResponseTypeCodeIDToken      = "code id_token"
	ResponseTypeCodeToken        = "code token"
	ResponseTypeCodeIDTokenToken = "code id_token token"
)

// responseTypeFlows maps each supported response type to its flow.
var responseTypeFlows = map[string]Flow{
	ResponseTypeCode:             FlowAuthorizationCode,
	ResponseTypeToken:            FlowImplicit,
	ResponseTypeIDToken:          FlowImplicit,
	ResponseTypeIDTokenToken:     FlowImplicit,
	ResponseTypeCodeIDToken:      FlowHybrid,
	ResponseTypeCodeToken:        FlowHybrid,
	ResponseTypeCodeIDTokenToken: FlowHybrid,
}

// CanonicalizeResponseType collapses runs of whitespace without reordering
// components. "code   id_token" canonicalizes to "code id_token";
// "token id_token" stays as-is and fails the lookup.
func CanonicalizeResponseType(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// FlowForResponseType resolves the flow for a canonicalized response type.
func FlowForResponseType(responseType string) (Flow, bool) {
	flow, ok := responseTypeFlows[responseType]
	return flow, ok
}

// ResponseTypeHasCode reports whether the response type contains the "code"
// component.
func ResponseTypeHasCode(responseType string) bool {
	return responseTypeContains(responseType, ResponseTypeCode)
}

// ResponseTypeHasToken reports whether the response type contains the "token"
// component (an access token is returned from the authorize endpoint).
func ResponseTypeHasToken(responseType string) bool {
	return responseTypeContains(responseType, ResponseTypeToken)
}

// ResponseTypeHasIDToken reports whether the response type contains the
// "id_token" component.
func ResponseTypeHasIDToken(responseType string) bool {
	return responseTypeContains(responseType, ResponseTypeIDToken)
}

func responseTypeContains(responseType, component string) bool {
	for _, part := range strings.Fields(responseType) {
		if part == component {
			return true
		}
	}
	return false
}

// ResponseMode selects how the authorize response is serialized back to the
// client.
type ResponseMode string

const (
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"
)

// allowedResponseModes lists the response modes each flow accepts.
var allowedResponseModes = map[Flow][]ResponseMode{
	FlowAuthorizationCode: {ResponseModeQuery, ResponseModeFormPost},
	FlowImplicit:          {ResponseModeFragment, ResponseModeFormPost},
	FlowHybrid:            {ResponseModeFragment, ResponseModeFormPost},
}

// DefaultResponseMode is the mode used when the request names none.
func DefaultResponseMode(flow Flow) ResponseMode {
	if flow == FlowAuthorizationCode {
		return ResponseModeQuery
	}
	return ResponseModeFragment
}

// ResponseModeAllowed reports whether the mode is valid for the flow.
func ResponseModeAllowed(flow Flow, mode ResponseMode) bool {
	for _, allowed := range allowedResponseModes[flow] {
		if allowed == mode {
			return true
		}
	}
	return false
}

// PromptMode values from OIDC Core. "none" may not co-occur with any other
// value.
type PromptMode string

const (
	PromptNone          PromptMode = "none"
	PromptLogin         PromptMode = "login"
	PromptConsent       PromptMode = "consent"
	PromptSelectAccount PromptMode = "select_account"
)

func (p PromptMode) IsValid() bool {
	switch p {
	case PromptNone, PromptLogin, PromptConsent, PromptSelectAccount:
		return true
	}
	return false
}

// CodeChallengeMethod for PKCE.
type CodeChallengeMethod string

const (
	CodeChallengePlain CodeChallengeMethod = "plain"
	CodeChallengeS256  CodeChallengeMethod = "S256"
)

func (m CodeChallengeMethod) IsValid() bool {
	return m == CodeChallengePlain || m == CodeChallengeS256
}

// Authorize endpoint error codes.
const (
	ErrInvalidRequest           = "invalid_request"
	ErrUnauthorizedClient       = "unauthorized_client"
	ErrAccessDenied             = "access_denied"
	ErrUnsupportedResponseType  = "unsupported_response_type"
	ErrInvalidScope             = "invalid_scope"
	ErrServerError              = "server_error"
	ErrLoginRequired            = "login_required"
	ErrConsentRequired          = "consent_required"
	ErrInteractionRequired      = "interaction_required"
	ErrAccountSelectionRequired = "account_selection_required"
)

// Token endpoint error codes.
const (
	ErrInvalidClient        = "invalid_client"
	ErrInvalidGrant         = "invalid_grant"
	ErrUnsupportedGrantType = "unsupported_grant_type"
)

// Device flow error codes (RFC 8628).
const (
	ErrAuthorizationPending = "authorization_pending"
	ErrSlowDown             = "slow_down"
	ErrExpiredToken         = "expired_token"
)

// Well-known scope names the engine treats specially.
const (
	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// Standard claim types.
const (
	ClaimSubject          = "sub"
	ClaimAuthTime         = "auth_time"
	ClaimIdentityProvider = "idp"
	ClaimAuthMethod       = "amr"
	ClaimSessionID        = "sid"
	ClaimName             = "name"
	ClaimEmail            = "email"
	ClaimScope            = "scope"
	ClaimClientID         = "client_id"
)

// PKCE verifier length bounds from RFC 7636 §4.1.
const (
	CodeVerifierMinLength = 43
	CodeVerifierMaxLength = 128
)

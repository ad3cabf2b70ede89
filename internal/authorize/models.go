// Package authorize implements the authorization-endpoint half of the
// protocol engine: request validation, the login/consent interaction
// decision, and authorize-response generation.
package authorize

import (
	"fmt"
	"net/url"
	"time"

	"assent/internal/client"
	"assent/internal/oidc"
	"assent/internal/resource"
)

// Request carries the raw authorize-endpoint parameters as received.
type Request struct {
	Parameters url.Values
	// Subject is the currently authenticated principal, empty claim set when
	// anonymous.
	Subject oidc.ClaimSet
	// SessionID is the host's browser-session identifier, empty when the
	// host has not established one yet.
	SessionID string
}

// ValidatedRequest is the immutable outcome of successful validation.
// Generators consume it without re-validating anything.
type ValidatedRequest struct {
	Client       *client.Client
	ResponseType string
	ResponseMode oidc.ResponseMode
	Flow         oidc.Flow
	RedirectURI  string
	State        string
	Nonce        string

	Scopes resource.ValidatedScopes
	// GrantedScopes are the raw scope values the response may carry. They
	// start as the requested set and are narrowed by consent.
	GrantedScopes []string

	PromptModes         []oidc.PromptMode
	MaxAge              *time.Duration
	LoginHint           string
	IdPHint             string
	AcrValues           []string
	CodeChallenge       string
	CodeChallengeMethod oidc.CodeChallengeMethod

	Subject         oidc.ClaimSet
	SessionID       string
	WasConsentShown bool
	IsOpenIDRequest bool

	// Raw preserves the original parameters for custom validators.
	Raw url.Values
}

// HasPrompt reports whether the given prompt mode was requested.
func (r *ValidatedRequest) HasPrompt(mode oidc.PromptMode) bool {
	for _, p := range r.PromptModes {
		if p == mode {
			return true
		}
	}
	return false
}

// RemovePrompt drops a prompt mode, so a satisfied prompt does not loop.
func (r *ValidatedRequest) RemovePrompt(mode oidc.PromptMode) {
	kept := r.PromptModes[:0]
	for _, p := range r.PromptModes {
		if p != mode {
			kept = append(kept, p)
		}
	}
	r.PromptModes = kept
}

// RequestedRawScopes returns the raw requested scope values.
func (r *ValidatedRequest) RequestedRawScopes() []string {
	out := make([]string, 0, len(r.Scopes.ParsedScopes))
	for _, s := range r.Scopes.ParsedScopes {
		out = append(out, s.Raw)
	}
	return out
}

// Error is a protocol error from the authorize endpoint.
//
// CanRedirect distinguishes the two reporting stages: before the client and
// its redirect URI are resolved the error can only be shown to the user;
// afterwards it carries everything needed to build an encoded error response
// back to the relying party.
type Error struct {
	Code        string
	Description string

	CanRedirect  bool
	RedirectURI  string
	ResponseMode oidc.ResponseMode
	State        string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func userError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func (v *ValidatedRequest) clientError(code, description string) *Error {
	return &Error{
		Code:         code,
		Description:  description,
		CanRedirect:  true,
		RedirectURI:  v.RedirectURI,
		ResponseMode: v.ResponseMode,
		State:        v.State,
	}
}

// InteractionResponse is the tagged outcome of the interaction decision.
// Exactly one of the four states holds: continue (zero value), login
// required, consent required, or a protocol error.
type InteractionResponse struct {
	IsLogin          bool
	IsConsent        bool
	ErrorCode        string
	ErrorDescription string
}

func (r InteractionResponse) IsError() bool {
	return r.ErrorCode != ""
}

// IsContinue reports that no interaction is needed and response generation
// may proceed.
func (r InteractionResponse) IsContinue() bool {
	return !r.IsLogin && !r.IsConsent && !r.IsError()
}

func loginRequired() InteractionResponse {
	return InteractionResponse{IsLogin: true}
}

func consentRequired() InteractionResponse {
	return InteractionResponse{IsConsent: true}
}

func interactionError(code, description string) InteractionResponse {
	return InteractionResponse{ErrorCode: code, ErrorDescription: description}
}

// Response is the successful authorize-endpoint payload, serialized by the
// transport according to the response mode.
type Response struct {
	Request *ValidatedRequest

	Code          string
	AccessToken   string
	TokenType     string
	ExpiresIn     int64
	IdentityToken string
	SessionState  string
}

// State echoes the request state.
func (r *Response) State() string {
	if r.Request == nil {
		return ""
	}
	return r.Request.State
}

// RedirectURI returns the validated redirect target.
func (r *Response) RedirectURI() string {
	if r.Request == nil {
		return ""
	}
	return r.Request.RedirectURI
}

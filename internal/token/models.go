// Package token implements the token-endpoint half of the protocol engine:
// grant validation for every supported grant type and token-response
// generation.
package token

import (
	"fmt"
	"net/url"

	"assent/internal/client"
	"assent/internal/grants"
	"assent/internal/oidc"
)

// Error is a protocol error from the token endpoint, serialized as the
// standard error / error_description JSON body.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func protocolError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// ValidatedRequest is the outcome of grant validation. Which fields are set
// depends on the grant type; GrantedScopes and Subject are populated for
// every grant that carries them.
type ValidatedRequest struct {
	Client    *client.Client
	GrantType oidc.GrantType
	// ExtensionGrant holds the registered grant name when GrantType is
	// GrantExtension.
	ExtensionGrant string

	Subject       oidc.ClaimSet
	SessionID     string
	GrantedScopes []string
	IsOpenID      bool

	// AuthorizationCode is set for the authorization_code grant; the code has
	// already been consumed from the store by the time validation succeeds.
	AuthorizationCode *grants.AuthorizationCode
	// RefreshToken and RefreshTokenHandle are set for the refresh_token
	// grant. The handle is the one presented by the client, before rotation.
	RefreshToken       *grants.RefreshToken
	RefreshTokenHandle string
	// DeviceCode is set for the device_code grant.
	DeviceCode *grants.DeviceCode

	// Raw preserves the form parameters for custom validators.
	Raw url.Values
}

// Result is the token-endpoint success payload.
type Result struct {
	AccessToken   string
	TokenType     string
	ExpiresIn     int64
	RefreshToken  string
	IdentityToken string
	Scope         string
}

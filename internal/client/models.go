// Package client holds OAuth client registrations and client authentication.
package client

import (
	"time"

	"assent/internal/oidc"
)

// Secret is one credential registered for a client. Value holds a bcrypt hash
// for shared secrets; for other types it holds the reference value compared
// by the matching secret validator.
type Secret struct {
	Type        SecretType
	Value       string
	Description string
	Expiration  time.Time
}

// AccessTokenType selects the access-token representation issued for a
// client: self-contained JWTs or opaque reference handles resolved through
// introspection.
type AccessTokenType string

const (
	AccessTokenJWT       AccessTokenType = "jwt"
	AccessTokenReference AccessTokenType = "reference"
)

// SecretType discriminates how a secret is verified.
type SecretType string

const (
	SecretSharedBcrypt   SecretType = "shared_bcrypt"
	SecretX509Thumbprint SecretType = "x509_thumbprint"
	SecretJWTBearer      SecretType = "private_key_jwt"
)

// Client is the aggregate root for an OAuth 2.0 / OIDC client registration.
// It is loaded once per request and never mutated afterwards.
//
// Invariants:
//   - ClientID is non-empty
//   - AllowedGrantTypes is non-empty; redirect-based grants require at least
//     one registered redirect URI
//   - redirect URIs are matched exactly, never by prefix
type Client struct {
	ClientID string
	Name     string
	Enabled  bool

	Secrets                          []Secret
	RequireClientSecret              bool
	AllowedGrantTypes                []oidc.GrantType
	AllowedExtensionGrants           []string
	AllowedScopes                    []string
	AllowOfflineAccess               bool
	RedirectURIs                     []string
	PostLogoutRedirectURIs           []string
	IdentityProviderFilter           []string
	EnableLocalLogin                 bool
	RequireConsent                   bool
	AllowRememberConsent             bool
	RequirePKCE                      bool
	AllowPlainTextPKCE               bool
	UpdateAccessTokenClaimsOnRefresh bool
	AccessTokenType                  AccessTokenType

	AccessTokenLifetime       time.Duration
	IdentityTokenLifetime     time.Duration
	AuthorizationCodeLifetime time.Duration
	RefreshTokenLifetime      time.Duration
	DeviceCodeLifetime        time.Duration
	DevicePollingInterval     time.Duration
}

// GetClientID satisfies consumer interfaces that only need the identifier.
func (c *Client) GetClientID() string { return c.ClientID }

// ConsentRequired reports whether this client's requests go through the
// consent stage.
func (c *Client) ConsentRequired() bool { return c.RequireConsent }

// RememberConsentAllowed reports whether consent decisions may be persisted.
func (c *Client) RememberConsentAllowed() bool { return c.AllowRememberConsent }

// GrantAllowed reports whether the client may use the given grant type.
func (c *Client) GrantAllowed(grant oidc.GrantType) bool {
	for _, g := range c.AllowedGrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// ExtensionGrantAllowed reports whether the named extension grant is
// registered for this client.
func (c *Client) ExtensionGrantAllowed(name string) bool {
	for _, g := range c.AllowedExtensionGrants {
		if g == name {
			return true
		}
	}
	return false
}

// FlowAllowed maps the derived authorize flow onto the client grant list.
func (c *Client) FlowAllowed(flow oidc.Flow) bool {
	switch flow {
	case oidc.FlowAuthorizationCode:
		return c.GrantAllowed(oidc.GrantAuthorizationCode)
	case oidc.FlowImplicit:
		return c.GrantAllowed(oidc.GrantImplicit)
	case oidc.FlowHybrid:
		return c.GrantAllowed(oidc.GrantHybrid)
	}
	return false
}

// ScopeAllowed reports whether the scope name is in the allow-list.
func (c *Client) ScopeAllowed(name string) bool {
	for _, s := range c.AllowedScopes {
		if s == name {
			return true
		}
	}
	return false
}

// OfflineAccessAllowed satisfies resource.ClientScopes.
func (c *Client) OfflineAccessAllowed() bool {
	return c.AllowOfflineAccess
}

// RedirectURIAllowed requires an exact match against a registered URI.
func (c *Client) RedirectURIAllowed(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// IdentityProviderAllowed reports whether the subject's provider passes the
// client restriction list. An empty list allows every provider.
func (c *Client) IdentityProviderAllowed(provider string) bool {
	if len(c.IdentityProviderFilter) == 0 {
		return true
	}
	for _, p := range c.IdentityProviderFilter {
		if p == provider {
			return true
		}
	}
	return false
}

// PKCERequired reports whether this request must carry a code challenge.
// The client flag forces PKCE for every redirect-based flow.
func (c *Client) PKCERequired(flow oidc.Flow) bool {
	if !c.RequirePKCE {
		return false
	}
	return flow == oidc.FlowAuthorizationCode || flow == oidc.FlowHybrid
}

// IssuesReferenceTokens reports whether access tokens for this client are
// opaque handles rather than self-contained JWTs. The zero value means JWT.
func (c *Client) IssuesReferenceTokens() bool {
	return c.AccessTokenType == AccessTokenReference
}

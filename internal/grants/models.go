// Package grants holds the persisted grant artifacts the protocol engine
// issues and consumes: authorization codes, refresh tokens, reference access
// tokens, and device codes. Store contracts live here too; implementations
// are in the store subpackages.
package grants

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"assent/internal/oidc"
)

// NewHandle returns a cryptographically random, URL-safe opaque handle used
// for codes and reference tokens.
func NewHandle() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it does the
		// process cannot safely issue grants at all.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// AuthorizationCode is a one-time-use code binding an authorize response to
// the following token request. Created at authorize-response time, consumed
// exactly once at token-request time.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	Subject             oidc.ClaimSet
	SessionID           string
	RequestedScopes     []string
	GrantedScopes       []string
	RedirectURI         string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod oidc.CodeChallengeMethod
	WasConsentShown     bool
	IsOpenID            bool
	CreationTime        time.Time
	Lifetime            time.Duration
}

func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return now.After(c.CreationTime.Add(c.Lifetime))
}

// RefreshToken is a long-lived grant handle. The stored access-token snapshot
// lets refresh reuse the original claims when the client does not refresh
// claims on rotation.
type RefreshToken struct {
	Handle        string
	ClientID      string
	Subject       oidc.ClaimSet
	GrantedScopes []string
	IsOpenID      bool
	// AccessTokenClaims snapshots the claims of the access token issued with
	// this handle.
	AccessTokenClaims oidc.ClaimSet
	CreationTime      time.Time
	Lifetime          time.Duration
}

func (r *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(r.CreationTime.Add(r.Lifetime))
}

// SubjectID returns the subject bound to the refresh token, empty when the
// claim is absent.
func (r *RefreshToken) SubjectID() string {
	sub, err := r.Subject.SubjectID()
	if err != nil {
		return ""
	}
	return sub
}

// ReferenceToken is an opaque access-token handle resolvable server-side.
type ReferenceToken struct {
	Handle       string
	ClientID     string
	SubjectID    string
	Scopes       []string
	Claims       oidc.ClaimSet
	CreationTime time.Time
	Lifetime     time.Duration
}

func (t *ReferenceToken) IsExpired(now time.Time) bool {
	return now.After(t.CreationTime.Add(t.Lifetime))
}

// DeviceCodeState tracks the device-flow authorization decision.
type DeviceCodeState string

const (
	DeviceCodePending    DeviceCodeState = "pending"
	DeviceCodeAuthorized DeviceCodeState = "authorized"
	DeviceCodeDenied     DeviceCodeState = "denied"
)

// DeviceCode is the long handle polled by the device; UserCode is the short
// human-enterable proxy shown to the user.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	ClientID        string
	Description     string
	RequestedScopes []string
	GrantedScopes   []string
	IsOpenID        bool
	State           DeviceCodeState
	// Subject is set when the user authorizes the device.
	Subject      oidc.ClaimSet
	SessionID    string
	CreationTime time.Time
	Lifetime     time.Duration
	Interval     time.Duration
}

func (d *DeviceCode) IsExpired(now time.Time) bool {
	return now.After(d.CreationTime.Add(d.Lifetime))
}

// Authorize records the user's approval for the device.
func (d *DeviceCode) Authorize(subject oidc.ClaimSet, sessionID string, grantedScopes []string) {
	d.State = DeviceCodeAuthorized
	d.Subject = subject
	d.SessionID = sessionID
	d.GrantedScopes = grantedScopes
}

// Deny records the user's rejection.
func (d *DeviceCode) Deny() {
	d.State = DeviceCodeDenied
}

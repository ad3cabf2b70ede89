package oidc

import (
	"encoding/json"
	"strconv"
	"time"

	dErrors "assent/pkg/domain-errors"
)

// Claim is a single typed assertion about a subject.
type Claim struct {
	Type      string
	Value     string
	ValueType string
}

// ClaimValueType constants for non-string claim values.
const (
	ClaimValueString  = "string"
	ClaimValueInteger = "integer"
	ClaimValueBoolean = "boolean"
)

// NewClaim builds a string-valued claim.
func NewClaim(claimType, value string) Claim {
	return Claim{Type: claimType, Value: value, ValueType: ClaimValueString}
}

// ClaimSet is an immutable ordered collection of claims representing an
// authenticated subject. Accessors return typed errors on missing claims
// instead of panicking, so callers always handle absence explicitly.
type ClaimSet struct {
	claims []Claim
}

// NewClaimSet copies the given claims into an immutable set.
func NewClaimSet(claims ...Claim) ClaimSet {
	cp := make([]Claim, len(claims))
	copy(cp, claims)
	return ClaimSet{claims: cp}
}

// IsAnonymous reports whether no subject claim is present.
func (c ClaimSet) IsAnonymous() bool {
	_, err := c.SubjectID()
	return err != nil
}

// Claims returns a copy of the underlying claims in order.
func (c ClaimSet) Claims() []Claim {
	cp := make([]Claim, len(c.claims))
	copy(cp, c.claims)
	return cp
}

// First returns the first claim of the given type.
func (c ClaimSet) First(claimType string) (Claim, bool) {
	for _, claim := range c.claims {
		if claim.Type == claimType {
			return claim, true
		}
	}
	return Claim{}, false
}

// All returns every claim of the given type in order.
func (c ClaimSet) All(claimType string) []Claim {
	var out []Claim
	for _, claim := range c.claims {
		if claim.Type == claimType {
			out = append(out, claim)
		}
	}
	return out
}

// With returns a new set with the claim appended.
func (c ClaimSet) With(claim Claim) ClaimSet {
	next := make([]Claim, 0, len(c.claims)+1)
	next = append(next, c.claims...)
	next = append(next, claim)
	return ClaimSet{claims: next}
}

// MarshalJSON serializes the ordered claim list so claim sets survive
// JSON-backed stores.
func (c ClaimSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.claims)
}

func (c *ClaimSet) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.claims)
}

// SubjectID returns the "sub" claim value.
func (c ClaimSet) SubjectID() (string, error) {
	claim, ok := c.First(ClaimSubject)
	if !ok || claim.Value == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "sub claim is missing")
	}
	return claim.Value, nil
}

// AuthTime returns the authentication instant from the "auth_time" claim.
func (c ClaimSet) AuthTime() (time.Time, error) {
	claim, ok := c.First(ClaimAuthTime)
	if !ok {
		return time.Time{}, dErrors.New(dErrors.CodeInvariantViolation, "auth_time claim is missing")
	}
	epoch, err := strconv.ParseInt(claim.Value, 10, 64)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "auth_time claim is not an epoch value")
	}
	return time.Unix(epoch, 0).UTC(), nil
}

// IdentityProvider returns the "idp" claim value.
func (c ClaimSet) IdentityProvider() (string, error) {
	claim, ok := c.First(ClaimIdentityProvider)
	if !ok || claim.Value == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "idp claim is missing")
	}
	return claim.Value, nil
}

// AuthenticationMethods returns every "amr" claim value in order.
func (c ClaimSet) AuthenticationMethods() []string {
	claims := c.All(ClaimAuthMethod)
	methods := make([]string, 0, len(claims))
	for _, claim := range claims {
		methods = append(methods, claim.Value)
	}
	return methods
}

// LocalIdentityProvider is the idp claim value for subjects who authenticated
// against the engine's own credential store rather than an external provider.
const LocalIdentityProvider = "local"

// NewSubject builds a claim set for an authenticated subject. authTime is
// truncated to seconds, matching the epoch encoding of the claim.
func NewSubject(subjectID, identityProvider string, authTime time.Time) ClaimSet {
	return NewClaimSet(
		NewClaim(ClaimSubject, subjectID),
		NewClaim(ClaimIdentityProvider, identityProvider),
		Claim{Type: ClaimAuthTime, Value: strconv.FormatInt(authTime.Unix(), 10), ValueType: ClaimValueInteger},
	)
}

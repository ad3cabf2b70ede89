// Package jwttoken signs and validates the JWTs issued by the engine:
// access tokens and identity tokens.
package jwttoken

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"assent/internal/oidc"
	dErrors "assent/pkg/domain-errors"
)

// AccessTokenRequest carries everything needed to mint an access token.
// Subject may be anonymous for the client credentials grant.
type AccessTokenRequest struct {
	ClientID  string
	Subject   oidc.ClaimSet
	SessionID string
	Scopes    []string
	Lifetime  time.Duration
}

// IdentityTokenRequest carries everything needed to mint an id_token.
// AccessToken and AuthorizationCode are optional; when present the matching
// at_hash / c_hash claim is embedded.
type IdentityTokenRequest struct {
	ClientID          string
	Subject           oidc.ClaimSet
	SessionID         string
	Nonce             string
	AccessToken       string
	AuthorizationCode string
	ProfileClaims     []oidc.Claim
	Lifetime          time.Duration
}

// Service signs tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(signingKey string, issuer string, opts ...Option) *Service {
	s := &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccessToken mints a signed access token. Scope is emitted as a
// space-delimited string.
func (s *Service) CreateAccessToken(ctx context.Context, req AccessTokenRequest) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"iss": s.issuer,
		"aud": s.issuer + "/resources",
		"iat": now.Unix(),
		"exp": now.Add(req.Lifetime).Unix(),
	}
	claims[oidc.ClaimClientID] = req.ClientID
	claims[oidc.ClaimScope] = strings.Join(req.Scopes, " ")
	if req.SessionID != "" {
		claims[oidc.ClaimSessionID] = req.SessionID
	}
	if !req.Subject.IsAnonymous() {
		subjectID, err := req.Subject.SubjectID()
		if err != nil {
			return "", err
		}
		claims[oidc.ClaimSubject] = subjectID
		s.copySubjectClaims(claims, req.Subject)
	}

	return s.sign(claims)
}

// CreateIdentityToken mints a signed id_token addressed to the client.
func (s *Service) CreateIdentityToken(ctx context.Context, req IdentityTokenRequest) (string, error) {
	subjectID, err := req.Subject.SubjectID()
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := jwt.MapClaims{
		"jti": uuid.NewString(),
		"iss": s.issuer,
		"aud": req.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(req.Lifetime).Unix(),
	}
	claims[oidc.ClaimSubject] = subjectID
	s.copySubjectClaims(claims, req.Subject)
	if req.SessionID != "" {
		claims[oidc.ClaimSessionID] = req.SessionID
	}
	if req.Nonce != "" {
		claims["nonce"] = req.Nonce
	}
	if req.AccessToken != "" {
		claims["at_hash"] = LeftmostHash(req.AccessToken)
	}
	if req.AuthorizationCode != "" {
		claims["c_hash"] = LeftmostHash(req.AuthorizationCode)
	}
	for _, c := range req.ProfileClaims {
		if _, taken := claims[c.Type]; taken {
			continue
		}
		claims[c.Type] = c.Value
	}

	return s.sign(claims)
}

// copySubjectClaims carries auth_time, idp, and amr from the subject into
// the token.
func (s *Service) copySubjectClaims(claims jwt.MapClaims, subject oidc.ClaimSet) {
	if authTime, err := subject.AuthTime(); err == nil {
		claims[oidc.ClaimAuthTime] = authTime.Unix()
	}
	if idp, err := subject.IdentityProvider(); err == nil {
		claims[oidc.ClaimIdentityProvider] = idp
	}
	if methods := subject.AuthenticationMethods(); len(methods) > 0 {
		claims[oidc.ClaimAuthMethod] = methods
	}
}

func (s *Service) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "token signing failed")
	}
	return signed, nil
}

// Validate parses and verifies a token previously issued by this service.
func (s *Service) Validate(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// LeftmostHash computes the OIDC at_hash / c_hash value: the left half of
// the SHA-256 digest, base64url encoded without padding.
func LeftmostHash(value string) string {
	digest := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2])
}

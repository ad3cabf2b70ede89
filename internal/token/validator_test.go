package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/client"
	"assent/internal/grants"
	authcode "assent/internal/grants/store/authorization-code"
	devicecode "assent/internal/grants/store/device-code"
	refreshtoken "assent/internal/grants/store/refresh-token"
	"assent/internal/oidc"
	"assent/internal/profile"
	"assent/internal/resource"
)

func newScopeValidator(t interface{ Fatalf(string, ...any) }) *resource.Validator {
	store, err := resource.NewInMemory(
		[]resource.IdentityResource{
			{Name: "openid", Enabled: true, ClaimTypes: []string{oidc.ClaimSubject}},
			{Name: "profile", Enabled: true, ClaimTypes: []string{oidc.ClaimName, oidc.ClaimEmail}},
		},
		[]resource.APIScope{
			{Name: "api.read", Enabled: true},
			{Name: "api.write", Enabled: true},
		},
	)
	if err != nil {
		t.Fatalf("resource store: %v", err)
	}
	return resource.NewValidator(store)
}

func newConfidentialClient() *client.Client {
	return &client.Client{
		ClientID: "web-app",
		Enabled:  true,
		AllowedGrantTypes: []oidc.GrantType{
			oidc.GrantAuthorizationCode,
			oidc.GrantRefreshToken,
			oidc.GrantClientCredentials,
			oidc.GrantPassword,
			oidc.GrantDeviceCode,
		},
		AllowedScopes:             []string{"openid", "profile", "api.read", "api.write"},
		AllowOfflineAccess:        true,
		RedirectURIs:              []string{"https://app.example.test/cb"},
		EnableLocalLogin:          true,
		AccessTokenLifetime:       time.Hour,
		IdentityTokenLifetime:     5 * time.Minute,
		AuthorizationCodeLifetime: 5 * time.Minute,
		RefreshTokenLifetime:      30 * 24 * time.Hour,
		DeviceCodeLifetime:        10 * time.Minute,
		DevicePollingInterval:     5 * time.Second,
	}
}

type ValidatorSuite struct {
	suite.Suite
	validator *Validator
	codes     *authcode.InMemoryStore
	refresh   *refreshtoken.InMemoryStore
	devices   *devicecode.InMemoryStore
	client    *client.Client
	now       time.Time
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.client = newConfidentialClient()
	s.codes = authcode.New()
	s.refresh = refreshtoken.New()
	s.devices = devicecode.New()

	users := profile.NewInMemory(
		profile.User{SubjectID: "alice", Username: "alice", Password: "s3cret", Active: true},
		profile.User{SubjectID: "bob", Username: "bob", Password: "s3cret", Active: false},
	)
	s.validator = NewValidator(newScopeValidator(s.T()), s.codes, s.refresh, s.devices, users,
		WithValidatorClock(func() time.Time { return s.now }),
		WithPasswordValidator(users),
	)
}

func (s *ValidatorSuite) subject() oidc.ClaimSet {
	return oidc.NewSubject("alice", oidc.LocalIdentityProvider, s.now.Add(-time.Minute))
}

func (s *ValidatorSuite) storedCode(mutate func(*grants.AuthorizationCode)) *grants.AuthorizationCode {
	code := &grants.AuthorizationCode{
		Code:            grants.NewHandle(),
		ClientID:        "web-app",
		Subject:         s.subject(),
		SessionID:       "session-1",
		RequestedScopes: []string{"openid", "profile"},
		GrantedScopes:   []string{"openid", "profile"},
		RedirectURI:     "https://app.example.test/cb",
		Nonce:           "nonce-1",
		IsOpenID:        true,
		CreationTime:    s.now.Add(-time.Minute),
		Lifetime:        5 * time.Minute,
	}
	if mutate != nil {
		mutate(code)
	}
	s.Require().NoError(s.codes.Store(context.Background(), code))
	return code
}

func (s *ValidatorSuite) validate(params url.Values) (*ValidatedRequest, *Error) {
	validated, protoErr, err := s.validator.Validate(context.Background(), s.client, params)
	s.Require().NoError(err)
	return validated, protoErr
}

func (s *ValidatorSuite) TestMissingGrantType() {
	_, protoErr := s.validate(url.Values{})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
}

func (s *ValidatorSuite) TestUnknownGrantType() {
	_, protoErr := s.validate(url.Values{"grant_type": {"carrier_pigeon"}})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrUnsupportedGrantType, protoErr.Code)
}

func (s *ValidatorSuite) TestGrantNotAllowedForClient() {
	s.client.AllowedGrantTypes = []oidc.GrantType{oidc.GrantAuthorizationCode}

	_, protoErr := s.validate(url.Values{"grant_type": {"client_credentials"}})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrUnauthorizedClient, protoErr.Code)
}

func (s *ValidatorSuite) TestAuthorizationCodeHappyPath() {
	code := s.storedCode(nil)

	validated, protoErr := s.validate(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb"},
	})
	s.Require().Nil(protoErr)
	s.Equal(oidc.GrantAuthorizationCode, validated.GrantType)
	s.Equal([]string{"openid", "profile"}, validated.GrantedScopes)
	s.Equal("session-1", validated.SessionID)
	s.True(validated.IsOpenID)
	s.Require().NotNil(validated.AuthorizationCode)
	s.Equal("nonce-1", validated.AuthorizationCode.Nonce)
}

func (s *ValidatorSuite) TestAuthorizationCodeReplayRejected() {
	code := s.storedCode(nil)
	params := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb"},
	}

	_, protoErr := s.validate(params)
	s.Require().Nil(protoErr)

	_, protoErr = s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestAuthorizationCodeWrongClient() {
	code := s.storedCode(func(c *grants.AuthorizationCode) { c.ClientID = "other-app" })

	_, protoErr := s.validate(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestAuthorizationCodeExpired() {
	code := s.storedCode(func(c *grants.AuthorizationCode) {
		c.CreationTime = s.now.Add(-time.Hour)
	})

	_, protoErr := s.validate(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestAuthorizationCodeRedirectMismatch() {
	code := s.storedCode(nil)

	_, protoErr := s.validate(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb/"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestAuthorizationCodeInactiveSubject() {
	code := s.storedCode(func(c *grants.AuthorizationCode) {
		c.Subject = oidc.NewSubject("bob", oidc.LocalIdentityProvider, s.now.Add(-time.Minute))
	})

	_, protoErr := s.validate(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestPKCEVerifierChecked() {
	verifier := strings.Repeat("v", 50)
	digest := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(digest[:])

	code := s.storedCode(func(c *grants.AuthorizationCode) {
		c.CodeChallenge = challenge
		c.CodeChallengeMethod = oidc.CodeChallengeS256
	})

	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"redirect_uri":  {"https://app.example.test/cb"},
		"code_verifier": {verifier},
	}
	validated, protoErr := s.validate(params)
	s.Require().Nil(protoErr)
	s.NotNil(validated.AuthorizationCode)
}

func (s *ValidatorSuite) TestPKCEVerifierMissing() {
	code := s.storedCode(func(c *grants.AuthorizationCode) {
		c.CodeChallenge = strings.Repeat("c", 43)
		c.CodeChallengeMethod = oidc.CodeChallengePlain
	})

	_, protoErr := s.validate(url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code.Code},
		"redirect_uri": {"https://app.example.test/cb"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
	s.Equal("code verifier is missing", protoErr.Description)
}

func (s *ValidatorSuite) TestPKCEVerifierWrong() {
	code := s.storedCode(func(c *grants.AuthorizationCode) {
		c.CodeChallenge = strings.Repeat("c", 43)
		c.CodeChallengeMethod = oidc.CodeChallengePlain
	})

	_, protoErr := s.validate(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code.Code},
		"redirect_uri":  {"https://app.example.test/cb"},
		"code_verifier": {strings.Repeat("x", 43)},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) storedRefreshToken(mutate func(*grants.RefreshToken)) *grants.RefreshToken {
	token := &grants.RefreshToken{
		Handle:        grants.NewHandle(),
		ClientID:      "web-app",
		Subject:       s.subject(),
		GrantedScopes: []string{"openid", "api.read", "offline_access"},
		IsOpenID:      true,
		CreationTime:  s.now.Add(-time.Hour),
		Lifetime:      30 * 24 * time.Hour,
	}
	if mutate != nil {
		mutate(token)
	}
	s.Require().NoError(s.refresh.Store(context.Background(), token))
	return token
}

func (s *ValidatorSuite) TestRefreshTokenHappyPath() {
	token := s.storedRefreshToken(nil)

	validated, protoErr := s.validate(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.Handle},
	})
	s.Require().Nil(protoErr)
	s.Equal(token.Handle, validated.RefreshTokenHandle)
	s.Equal([]string{"openid", "api.read", "offline_access"}, validated.GrantedScopes)
	s.True(validated.IsOpenID)
}

func (s *ValidatorSuite) TestRefreshTokenUnknown() {
	_, protoErr := s.validate(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {"nope"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestRefreshTokenWrongClient() {
	token := s.storedRefreshToken(func(t *grants.RefreshToken) { t.ClientID = "other-app" })

	_, protoErr := s.validate(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.Handle},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestRefreshTokenExpiredIsRemoved() {
	token := s.storedRefreshToken(func(t *grants.RefreshToken) {
		t.CreationTime = s.now.Add(-60 * 24 * time.Hour)
	})

	_, protoErr := s.validate(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.Handle},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)

	_, err := s.refresh.Get(context.Background(), token.Handle)
	s.Error(err, "expired token is cleaned up")
}

func (s *ValidatorSuite) TestRefreshTokenScopeNarrowing() {
	token := s.storedRefreshToken(nil)

	validated, protoErr := s.validate(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.Handle},
		"scope":         {"api.read"},
	})
	s.Require().Nil(protoErr)
	s.Equal([]string{"api.read"}, validated.GrantedScopes)
}

func (s *ValidatorSuite) TestRefreshTokenScopeEscalationRejected() {
	token := s.storedRefreshToken(nil)

	_, protoErr := s.validate(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.Handle},
		"scope":         {"api.read api.write"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidScope, protoErr.Code)
}

func (s *ValidatorSuite) TestClientCredentials() {
	validated, protoErr := s.validate(url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api.read"},
	})
	s.Require().Nil(protoErr)
	s.Equal([]string{"api.read"}, validated.GrantedScopes)
	s.True(validated.Subject.IsAnonymous())
}

func (s *ValidatorSuite) TestClientCredentialsRejectsOpenID() {
	_, protoErr := s.validate(url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"openid api.read"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidScope, protoErr.Code)
}

func (s *ValidatorSuite) TestClientCredentialsRejectsOfflineAccess() {
	_, protoErr := s.validate(url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api.read offline_access"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidScope, protoErr.Code)
}

func (s *ValidatorSuite) TestPasswordGrant() {
	validated, protoErr := s.validate(url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"s3cret"},
		"scope":      {"openid api.read"},
	})
	s.Require().Nil(protoErr)
	s.True(validated.IsOpenID)

	subjectID, err := validated.Subject.SubjectID()
	s.Require().NoError(err)
	s.Equal("alice", subjectID)
}

func (s *ValidatorSuite) TestPasswordGrantBadCredentials() {
	_, protoErr := s.validate(url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"wrong"},
		"scope":      {"openid"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) TestPasswordGrantInactiveUser() {
	_, protoErr := s.validate(url.Values{
		"grant_type": {"password"},
		"username":   {"bob"},
		"password":   {"s3cret"},
		"scope":      {"openid"},
	})
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code)
}

func (s *ValidatorSuite) storedDeviceCode(mutate func(*grants.DeviceCode)) *grants.DeviceCode {
	code := &grants.DeviceCode{
		DeviceCode:      grants.NewHandle(),
		UserCode:        "123456789",
		ClientID:        "web-app",
		RequestedScopes: []string{"openid", "api.read"},
		State:           grants.DeviceCodePending,
		CreationTime:    s.now.Add(-time.Minute),
		Lifetime:        10 * time.Minute,
		Interval:        5 * time.Second,
	}
	if mutate != nil {
		mutate(code)
	}
	s.Require().NoError(s.devices.StoreDeviceCode(context.Background(), code))
	return code
}

func (s *ValidatorSuite) deviceParams(code *grants.DeviceCode) url.Values {
	return url.Values{
		"grant_type":  {string(oidc.GrantDeviceCode)},
		"device_code": {code.DeviceCode},
	}
}

func (s *ValidatorSuite) TestDeviceCodePending() {
	code := s.storedDeviceCode(nil)

	_, protoErr := s.validate(s.deviceParams(code))
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrAuthorizationPending, protoErr.Code)
}

func (s *ValidatorSuite) TestDeviceCodeDenied() {
	code := s.storedDeviceCode(func(c *grants.DeviceCode) { c.Deny() })

	_, protoErr := s.validate(s.deviceParams(code))
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrAccessDenied, protoErr.Code)

	_, protoErr = s.validate(s.deviceParams(code))
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code, "denied code is removed")
}

func (s *ValidatorSuite) TestDeviceCodeExpired() {
	code := s.storedDeviceCode(func(c *grants.DeviceCode) {
		c.CreationTime = s.now.Add(-time.Hour)
	})

	_, protoErr := s.validate(s.deviceParams(code))
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrExpiredToken, protoErr.Code)
}

func (s *ValidatorSuite) TestDeviceCodeAuthorizedRedeemsOnce() {
	code := s.storedDeviceCode(func(c *grants.DeviceCode) {
		c.Authorize(s.subject(), "session-9", []string{"openid", "api.read"})
		c.IsOpenID = true
	})

	validated, protoErr := s.validate(s.deviceParams(code))
	s.Require().Nil(protoErr)
	s.Equal([]string{"openid", "api.read"}, validated.GrantedScopes)
	s.Equal("session-9", validated.SessionID)
	s.True(validated.IsOpenID)

	_, protoErr = s.validate(s.deviceParams(code))
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidGrant, protoErr.Code, "redemption is one-time")
}

type slowDownAlways struct{}

func (slowDownAlways) ShouldSlowDown(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func (s *ValidatorSuite) TestDeviceCodePollingThrottled() {
	users := profile.NewInMemory(profile.User{SubjectID: "alice", Active: true})
	validator := NewValidator(newScopeValidator(s.T()), s.codes, s.refresh, s.devices, users,
		WithValidatorClock(func() time.Time { return s.now }),
		WithPollingThrottle(slowDownAlways{}),
	)
	code := s.storedDeviceCode(nil)

	_, protoErr, err := validator.Validate(context.Background(), s.client, s.deviceParams(code))
	s.Require().NoError(err)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrSlowDown, protoErr.Code)
}

type staticExtensionGrant struct{ subject oidc.ClaimSet }

func (staticExtensionGrant) GrantType() string { return "urn:example:delegation" }

func (g staticExtensionGrant) ValidateGrant(_ context.Context, req *ValidatedRequest) (oidc.ClaimSet, *Error, error) {
	if req.Raw.Get("delegation_token") == "" {
		return oidc.ClaimSet{}, protocolError(oidc.ErrInvalidGrant, "delegation token missing"), nil
	}
	return g.subject, nil, nil
}

func (s *ValidatorSuite) TestExtensionGrant() {
	s.client.AllowedExtensionGrants = []string{"urn:example:delegation"}
	users := profile.NewInMemory(profile.User{SubjectID: "alice", Active: true})
	validator := NewValidator(newScopeValidator(s.T()), s.codes, s.refresh, s.devices, users,
		WithExtensionGrant(staticExtensionGrant{subject: s.subject()}),
	)

	validated, protoErr, err := validator.Validate(context.Background(), s.client, url.Values{
		"grant_type":       {"urn:example:delegation"},
		"delegation_token": {"token-1"},
		"scope":            {"api.read"},
	})
	s.Require().NoError(err)
	s.Require().Nil(protoErr)
	s.Equal(oidc.GrantExtension, validated.GrantType)
	s.Equal("urn:example:delegation", validated.ExtensionGrant)
	s.Equal([]string{"api.read"}, validated.GrantedScopes)
}

func (s *ValidatorSuite) TestExtensionGrantNotAllowedForClient() {
	users := profile.NewInMemory(profile.User{SubjectID: "alice", Active: true})
	validator := NewValidator(newScopeValidator(s.T()), s.codes, s.refresh, s.devices, users,
		WithExtensionGrant(staticExtensionGrant{subject: s.subject()}),
	)

	_, protoErr, err := validator.Validate(context.Background(), s.client, url.Values{
		"grant_type":       {"urn:example:delegation"},
		"delegation_token": {"token-1"},
	})
	s.Require().NoError(err)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrUnauthorizedClient, protoErr.Code)
}

type denyAllTokens struct{}

func (denyAllTokens) ValidateTokenRequest(context.Context, *ValidatedRequest) (*Error, error) {
	return protocolError(oidc.ErrInvalidGrant, "policy rejected"), nil
}

func (s *ValidatorSuite) TestCustomValidatorRuns() {
	users := profile.NewInMemory(profile.User{SubjectID: "alice", Active: true})
	validator := NewValidator(newScopeValidator(s.T()), s.codes, s.refresh, s.devices, users,
		WithCustomValidator(denyAllTokens{}),
	)

	_, protoErr, err := validator.Validate(context.Background(), s.client, url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"api.read"},
	})
	s.Require().NoError(err)
	s.Require().NotNil(protoErr)
	s.Equal("policy rejected", protoErr.Description)
}

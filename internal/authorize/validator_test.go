package authorize

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/client"
	"assent/internal/oidc"
	"assent/internal/resource"
)

func newTestClient() *client.Client {
	return &client.Client{
		ClientID: "web-app",
		Name:     "Web App",
		Enabled:  true,
		AllowedGrantTypes: []oidc.GrantType{
			oidc.GrantAuthorizationCode,
			oidc.GrantImplicit,
			oidc.GrantHybrid,
		},
		AllowedScopes:             []string{"openid", "profile", "api.read"},
		AllowOfflineAccess:        true,
		RedirectURIs:              []string{"https://app.example.test/cb"},
		EnableLocalLogin:          true,
		AllowPlainTextPKCE:        false,
		AccessTokenLifetime:       time.Hour,
		IdentityTokenLifetime:     5 * time.Minute,
		AuthorizationCodeLifetime: 5 * time.Minute,
	}
}

func newScopeValidator(t interface{ Fatalf(string, ...any) }) *resource.Validator {
	store, err := resource.NewInMemory(
		[]resource.IdentityResource{
			{Name: "openid", Enabled: true, Required: true, ClaimTypes: []string{oidc.ClaimSubject}},
			{Name: "profile", Enabled: true, ClaimTypes: []string{oidc.ClaimName, oidc.ClaimEmail}},
		},
		[]resource.APIScope{
			{Name: "api.read", Enabled: true},
		},
	)
	if err != nil {
		t.Fatalf("resource store: %v", err)
	}
	return resource.NewValidator(store)
}

type permitAllScopes struct{}

func (permitAllScopes) ScopeAllowed(string) bool { return true }

func (permitAllScopes) OfflineAccessAllowed() bool { return true }

func scopesFor(t *testing.T, scope string) resource.ValidatedScopes {
	t.Helper()
	validated, err := newScopeValidator(t).ValidateRequestedScopes(context.Background(), scope, permitAllScopes{})
	if err != nil {
		t.Fatalf("scope fixture: %v", err)
	}
	return validated
}

type ValidatorSuite struct {
	suite.Suite
	validator *Validator
	client    *client.Client
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.client = newTestClient()
	clients := client.NewValidator(client.NewInMemory(s.client))
	s.validator = NewValidator(clients, newScopeValidator(s.T()))
}

func (s *ValidatorSuite) validParams() url.Values {
	return url.Values{
		"client_id":     {"web-app"},
		"response_type": {"code"},
		"redirect_uri":  {"https://app.example.test/cb"},
		"scope":         {"openid profile"},
		"state":         {"xyz"},
	}
}

func (s *ValidatorSuite) validate(params url.Values) (*ValidatedRequest, *Error) {
	validated, protoErr, err := s.validator.Validate(context.Background(), Request{Parameters: params})
	s.Require().NoError(err)
	return validated, protoErr
}

func (s *ValidatorSuite) TestValidRequest() {
	validated, protoErr := s.validate(s.validParams())
	s.Require().Nil(protoErr)
	s.Equal("web-app", validated.Client.ClientID)
	s.Equal("code", validated.ResponseType)
	s.Equal(oidc.FlowAuthorizationCode, validated.Flow)
	s.Equal(oidc.ResponseModeQuery, validated.ResponseMode)
	s.Equal("xyz", validated.State)
	s.True(validated.IsOpenIDRequest)
	s.Equal([]string{"openid", "profile"}, validated.GrantedScopes)
	s.NotEmpty(validated.SessionID, "a session id is assigned even for anonymous requests")
}

func (s *ValidatorSuite) TestMissingClientID() {
	params := s.validParams()
	params.Del("client_id")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
	s.False(protoErr.CanRedirect)
}

func (s *ValidatorSuite) TestUnknownClient() {
	params := s.validParams()
	params.Set("client_id", "nope")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
	s.False(protoErr.CanRedirect)
}

func (s *ValidatorSuite) TestResponseTypeOrderIsSignificant() {
	params := s.validParams()
	params.Set("response_type", "token id_token")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrUnsupportedResponseType, protoErr.Code)
}

func (s *ValidatorSuite) TestResponseTypeWhitespaceCollapsed() {
	params := s.validParams()
	params.Set("response_type", "  code \t id_token ")
	params.Set("nonce", "n-1")

	validated, protoErr := s.validate(params)
	s.Require().Nil(protoErr)
	s.Equal("code id_token", validated.ResponseType)
	s.Equal(oidc.FlowHybrid, validated.Flow)
	s.Equal(oidc.ResponseModeFragment, validated.ResponseMode)
}

func (s *ValidatorSuite) TestFlowNotAllowedForClient() {
	s.client.AllowedGrantTypes = []oidc.GrantType{oidc.GrantAuthorizationCode}
	params := s.validParams()
	params.Set("response_type", "id_token")
	params.Set("nonce", "n-1")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrUnauthorizedClient, protoErr.Code)
	s.False(protoErr.CanRedirect, "flow check precedes redirect_uri validation")
}

func (s *ValidatorSuite) TestRedirectURIMustMatchExactly() {
	for _, uri := range []string{
		"https://app.example.test/cb/",
		"https://app.example.test/cb?extra=1",
		"https://app.example.test/other",
	} {
		s.Run(uri, func() {
			params := s.validParams()
			params.Set("redirect_uri", uri)

			_, protoErr := s.validate(params)
			s.Require().NotNil(protoErr)
			s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
			s.False(protoErr.CanRedirect)
		})
	}
}

func (s *ValidatorSuite) TestScopeNotAllowed() {
	params := s.validParams()
	params.Set("scope", "openid admin")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidScope, protoErr.Code)
	s.True(protoErr.CanRedirect, "scope errors occur after redirect_uri is trusted")
	s.Equal("https://app.example.test/cb", protoErr.RedirectURI)
	s.Equal("xyz", protoErr.State)
}

func (s *ValidatorSuite) TestIDTokenResponseTypeRequiresOpenIDScope() {
	params := s.validParams()
	params.Set("response_type", "id_token")
	params.Set("scope", "api.read")
	params.Set("nonce", "n-1")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
}

func (s *ValidatorSuite) TestOpenIDScopeRequiresIdentityCapableResponseType() {
	params := s.validParams()
	params.Set("response_type", "token")
	params.Set("scope", "openid api.read")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
	s.True(protoErr.CanRedirect)
}

func (s *ValidatorSuite) TestNonceRequiredForImplicitIDToken() {
	params := s.validParams()
	params.Set("response_type", "id_token token")
	params.Set("scope", "openid api.read")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
	s.True(protoErr.CanRedirect)
}

func (s *ValidatorSuite) TestNonceNotRequiredForCodeFlow() {
	validated, protoErr := s.validate(s.validParams())
	s.Require().Nil(protoErr)
	s.Empty(validated.Nonce)
}

func (s *ValidatorSuite) TestResponseModeRestrictedByFlow() {
	params := s.validParams()
	params.Set("response_mode", "fragment")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
}

func (s *ValidatorSuite) TestExplicitFormPostResponseMode() {
	params := s.validParams()
	params.Set("response_mode", "form_post")

	validated, protoErr := s.validate(params)
	s.Require().Nil(protoErr)
	s.Equal(oidc.ResponseModeFormPost, validated.ResponseMode)
}

func (s *ValidatorSuite) TestMaxAgeParsing() {
	params := s.validParams()
	params.Set("max_age", "3600")

	validated, protoErr := s.validate(params)
	s.Require().Nil(protoErr)
	s.Require().NotNil(validated.MaxAge)
	s.Equal(time.Hour, *validated.MaxAge)
}

func (s *ValidatorSuite) TestNegativeMaxAgeRejected() {
	params := s.validParams()
	params.Set("max_age", "-1")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
}

func (s *ValidatorSuite) TestPromptNoneCannotCombine() {
	params := s.validParams()
	params.Set("prompt", "none login")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
}

func (s *ValidatorSuite) TestIdPHintParsedFromAcrValues() {
	params := s.validParams()
	params.Set("acr_values", "idp:google level2")

	validated, protoErr := s.validate(params)
	s.Require().Nil(protoErr)
	s.Equal("google", validated.IdPHint)
	s.Equal([]string{"level2"}, validated.AcrValues)
}

func (s *ValidatorSuite) TestPKCERequiredButMissing() {
	s.client.RequirePKCE = true

	_, protoErr := s.validate(s.validParams())
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
	s.Equal("code challenge required", protoErr.Description)
}

func (s *ValidatorSuite) TestPKCEPlainRejectedWhenDisallowed() {
	params := s.validParams()
	params.Set("code_challenge", strings.Repeat("a", 43))

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal("Transform algorithm not supported", protoErr.Description)
}

func (s *ValidatorSuite) TestPKCEUnknownMethodRejected() {
	params := s.validParams()
	params.Set("code_challenge", strings.Repeat("a", 43))
	params.Set("code_challenge_method", "S512")

	_, protoErr := s.validate(params)
	s.Require().NotNil(protoErr)
	s.Equal("Transform algorithm not supported", protoErr.Description)
}

func (s *ValidatorSuite) TestPKCES256Accepted() {
	s.client.RequirePKCE = true
	params := s.validParams()
	params.Set("code_challenge", strings.Repeat("a", 43))
	params.Set("code_challenge_method", "S256")

	validated, protoErr := s.validate(params)
	s.Require().Nil(protoErr)
	s.Equal(oidc.CodeChallengeS256, validated.CodeChallengeMethod)
}

func (s *ValidatorSuite) TestPKCEChallengeLengthBounds() {
	for name, challenge := range map[string]string{
		"too short": strings.Repeat("a", 42),
		"too long":  strings.Repeat("a", 129),
	} {
		s.Run(name, func() {
			params := s.validParams()
			params.Set("code_challenge", challenge)
			params.Set("code_challenge_method", "S256")

			_, protoErr := s.validate(params)
			s.Require().NotNil(protoErr)
			s.Equal(oidc.ErrInvalidRequest, protoErr.Code)
		})
	}
}

type rejectAll struct{}

func (rejectAll) ValidateAuthorizeRequest(_ context.Context, req *ValidatedRequest) (*Error, error) {
	return req.clientError(oidc.ErrAccessDenied, "policy rejected"), nil
}

func (s *ValidatorSuite) TestCustomValidatorRuns() {
	clients := client.NewValidator(client.NewInMemory(s.client))
	validator := NewValidator(clients, newScopeValidator(s.T()), WithCustomValidator(rejectAll{}))

	_, protoErr, err := validator.Validate(context.Background(), Request{Parameters: s.validParams()})
	s.Require().NoError(err)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrAccessDenied, protoErr.Code)
	s.Equal("policy rejected", protoErr.Description)
}

func (s *ValidatorSuite) TestProvidedSessionIDKept() {
	validated, protoErr, err := s.validator.Validate(context.Background(), Request{
		Parameters: s.validParams(),
		SessionID:  "session-42",
	})
	s.Require().NoError(err)
	s.Require().Nil(protoErr)
	s.Equal("session-42", validated.SessionID)
}

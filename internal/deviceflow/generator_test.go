package deviceflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"assent/internal/client"
	devicecode "assent/internal/grants/store/device-code"
	"assent/internal/oidc"
	"assent/internal/resource"
)

func newDeviceClient() *client.Client {
	return &client.Client{
		ClientID:              "tv-app",
		Enabled:               true,
		AllowedGrantTypes:     []oidc.GrantType{oidc.GrantDeviceCode},
		AllowedScopes:         []string{"openid", "api.read"},
		DeviceCodeLifetime:    10 * time.Minute,
		DevicePollingInterval: 5 * time.Second,
	}
}

func newScopeValidator(t interface{ Fatalf(string, ...any) }) *resource.Validator {
	store, err := resource.NewInMemory(
		[]resource.IdentityResource{
			{Name: "openid", Enabled: true, ClaimTypes: []string{oidc.ClaimSubject}},
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

type GeneratorSuite struct {
	suite.Suite
	generator *ResponseGenerator
	devices   *devicecode.InMemoryStore
	now       time.Time
}

func TestGeneratorSuite(t *testing.T) {
	suite.Run(t, new(GeneratorSuite))
}

func (s *GeneratorSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.devices = devicecode.New()
	s.generator = NewResponseGenerator(s.devices, newScopeValidator(s.T()),
		"https://issuer.test/device",
		WithGeneratorClock(func() time.Time { return s.now }),
	)
}

func (s *GeneratorSuite) TestCreateResponse() {
	resp, protoErr, err := s.generator.CreateResponse(context.Background(), newDeviceClient(), "openid api.read", "")
	s.Require().NoError(err)
	s.Require().Nil(protoErr)

	s.NotEmpty(resp.DeviceCode)
	s.Len(resp.UserCode, 9)
	s.Equal("https://issuer.test/device", resp.VerificationURI)
	s.Equal("https://issuer.test/device?user_code="+resp.UserCode, resp.VerificationURIComplete)
	s.Equal(int64(600), resp.ExpiresIn)
	s.Equal(int64(5), resp.Interval)

	stored, err := s.devices.FindByDeviceCode(context.Background(), resp.DeviceCode)
	s.Require().NoError(err)
	s.Equal("tv-app", stored.ClientID)
	s.Equal([]string{"openid", "api.read"}, stored.RequestedScopes)
	s.True(stored.IsOpenID)
	s.Equal(s.now, stored.CreationTime)

	byUser, err := s.devices.FindByUserCode(context.Background(), resp.UserCode)
	s.Require().NoError(err)
	s.Equal(resp.DeviceCode, byUser.DeviceCode)
}

func (s *GeneratorSuite) TestGrantNotAllowed() {
	c := newDeviceClient()
	c.AllowedGrantTypes = []oidc.GrantType{oidc.GrantAuthorizationCode}

	_, protoErr, err := s.generator.CreateResponse(context.Background(), c, "api.read", "")
	s.Require().NoError(err)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrUnauthorizedClient, protoErr.Code)
}

func (s *GeneratorSuite) TestInvalidScope() {
	_, protoErr, err := s.generator.CreateResponse(context.Background(), newDeviceClient(), "admin", "")
	s.Require().NoError(err)
	s.Require().NotNil(protoErr)
	s.Equal(oidc.ErrInvalidScope, protoErr.Code)
}

func (s *GeneratorSuite) TestUserAgentBecomesDescription() {
	const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	resp, protoErr, err := s.generator.CreateResponse(context.Background(), newDeviceClient(), "api.read", chromeUA)
	s.Require().NoError(err)
	s.Require().Nil(protoErr)

	stored, err := s.devices.FindByDeviceCode(context.Background(), resp.DeviceCode)
	s.Require().NoError(err)
	s.Contains(stored.Description, "Chrome")
}

type fixedThenFresh struct {
	calls int
}

func (g *fixedThenFresh) Generate() (string, error) {
	g.calls++
	if g.calls == 1 {
		return "111111111", nil
	}
	return "222222222", nil
}

func (s *GeneratorSuite) TestUserCodeCollisionRetries() {
	gen := &fixedThenFresh{}
	generator := NewResponseGenerator(s.devices, newScopeValidator(s.T()),
		"https://issuer.test/device",
		WithGeneratorClock(func() time.Time { return s.now }),
		WithUserCodeGenerator(gen),
	)

	first, protoErr, err := generator.CreateResponse(context.Background(), newDeviceClient(), "api.read", "")
	s.Require().NoError(err)
	s.Require().Nil(protoErr)
	s.Equal("111111111", first.UserCode)

	gen.calls = 0
	second, protoErr, err := generator.CreateResponse(context.Background(), newDeviceClient(), "api.read", "")
	s.Require().NoError(err)
	s.Require().Nil(protoErr)
	s.Equal("222222222", second.UserCode, "collision retried with a fresh code")
}

func Test_NumericUserCode(t *testing.T) {
	code, err := NumericUserCode{}.Generate()
	require.NoError(t, err)
	assert.Len(t, code, 9)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

// Package deviceflow implements the device-authorization endpoint (RFC 8628):
// device/user code issuance, the user-side approve/deny operations, and
// polling throttles for the token endpoint.
package deviceflow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/mssola/useragent"

	"assent/internal/client"
	"assent/internal/grants"
	"assent/internal/oidc"
	"assent/internal/resource"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/sentinel"
)

const (
	defaultCodeLifetime    = 5 * time.Minute
	defaultPollingInterval = 5 * time.Second

	// userCodeRetries bounds generator collisions before giving up.
	userCodeRetries = 5
)

// Error is a protocol error from the device-authorization endpoint.
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

// Response is the device-authorization success payload.
type Response struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// UserCodeGenerator produces the short code the user types in. Generated
// codes may collide; the store surfaces collisions and the generator is
// retried.
type UserCodeGenerator interface {
	Generate() (string, error)
}

// NumericUserCode generates 9-digit codes, the format easiest to read out
// over the phone.
type NumericUserCode struct{}

func (NumericUserCode) Generate() (string, error) {
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate user code: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// ScopeValidator validates requested scopes against a client and the
// resource configuration.
type ScopeValidator interface {
	ValidateRequestedScopes(ctx context.Context, scope string, c resource.ClientScopes) (resource.ValidatedScopes, error)
}

// ResponseGenerator issues device and user codes.
type ResponseGenerator struct {
	devices         grants.DeviceFlowStore
	scopes          ScopeValidator
	userCodes       UserCodeGenerator
	verificationURI string
	logger          *slog.Logger
	now             func() time.Time
}

type GeneratorOption func(*ResponseGenerator)

func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *ResponseGenerator) {
		g.logger = logger
	}
}

func WithGeneratorClock(now func() time.Time) GeneratorOption {
	return func(g *ResponseGenerator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithUserCodeGenerator replaces the default numeric generator.
func WithUserCodeGenerator(gen UserCodeGenerator) GeneratorOption {
	return func(g *ResponseGenerator) {
		g.userCodes = gen
	}
}

func NewResponseGenerator(devices grants.DeviceFlowStore, scopes ScopeValidator, verificationURI string, opts ...GeneratorOption) *ResponseGenerator {
	g := &ResponseGenerator{
		devices:         devices,
		scopes:          scopes,
		userCodes:       NumericUserCode{},
		verificationURI: verificationURI,
		logger:          slog.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateResponse validates the request and issues a device/user code pair.
// userAgent, when present, becomes the human-readable device description
// shown on the approval page.
func (g *ResponseGenerator) CreateResponse(ctx context.Context, c *client.Client, scope, userAgent string) (*Response, *Error, error) {
	if !c.GrantAllowed(oidc.GrantDeviceCode) {
		g.logger.WarnContext(ctx, "device flow not allowed for client", "client_id", c.ClientID)
		return nil, &Error{Code: oidc.ErrUnauthorizedClient, Description: "grant type not allowed for client"}, nil
	}

	validatedScopes, err := g.scopes.ValidateRequestedScopes(ctx, scope, c)
	if err != nil {
		var invalidScope *resource.InvalidScopeError
		if errors.As(err, &invalidScope) {
			return nil, &Error{Code: oidc.ErrInvalidScope, Description: "scope not allowed: " + invalidScope.Scope}, nil
		}
		return nil, nil, err
	}

	lifetime := c.DeviceCodeLifetime
	if lifetime <= 0 {
		lifetime = defaultCodeLifetime
	}
	interval := c.DevicePollingInterval
	if interval <= 0 {
		interval = defaultPollingInterval
	}

	var requested []string
	for _, s := range validatedScopes.ParsedScopes {
		requested = append(requested, s.Raw)
	}

	code := &grants.DeviceCode{
		DeviceCode:      grants.NewHandle(),
		ClientID:        c.ClientID,
		Description:     describeDevice(userAgent),
		RequestedScopes: requested,
		IsOpenID:        validatedScopes.IsOpenID(),
		State:           grants.DeviceCodePending,
		CreationTime:    g.now(),
		Lifetime:        lifetime,
		Interval:        interval,
	}

	if err := g.storeWithFreshUserCode(ctx, code); err != nil {
		return nil, nil, err
	}

	g.logger.InfoContext(ctx, "device authorization issued",
		"client_id", c.ClientID, "user_code", code.UserCode)
	return &Response{
		DeviceCode:              code.DeviceCode,
		UserCode:                code.UserCode,
		VerificationURI:         g.verificationURI,
		VerificationURIComplete: g.verificationURI + "?user_code=" + code.UserCode,
		ExpiresIn:               int64(lifetime / time.Second),
		Interval:                int64(interval / time.Second),
	}, nil, nil
}

// storeWithFreshUserCode retries on user-code collisions; the store claims
// the user code atomically.
func (g *ResponseGenerator) storeWithFreshUserCode(ctx context.Context, code *grants.DeviceCode) error {
	for attempt := 0; attempt < userCodeRetries; attempt++ {
		userCode, err := g.userCodes.Generate()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "user code generation failed")
		}
		code.UserCode = userCode

		err = g.devices.StoreDeviceCode(ctx, code)
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "device code store failed")
	}
	return dErrors.New(dErrors.CodeUnavailable, "user code space exhausted")
}

// describeDevice renders a user agent into something a person can recognize
// on the approval page.
func describeDevice(rawUserAgent string) string {
	if rawUserAgent == "" {
		return ""
	}
	ua := useragent.New(rawUserAgent)
	name, _ := ua.Browser()
	if name == "" {
		return rawUserAgent
	}
	if ua.OS() == "" {
		return name
	}
	return name + " on " + ua.OS()
}

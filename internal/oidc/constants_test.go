package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowForResponseType(t *testing.T) {
	cases := []struct {
		responseType string
		flow         Flow
		ok           bool
	}{
		{"code", FlowAuthorizationCode, true},
		{"token", FlowImplicit, true},
		{"id_token", FlowImplicit, true},
		{"id_token token", FlowImplicit, true},
		{"code id_token", FlowHybrid, true},
		{"code token", FlowHybrid, true},
		{"code id_token token", FlowHybrid, true},
		// Component order matters: reversed orderings are unsupported.
		{"token id_token", "", false},
		{"id_token code", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		flow, ok := FlowForResponseType(tc.responseType)
		assert.Equal(t, tc.ok, ok, tc.responseType)
		assert.Equal(t, tc.flow, flow, tc.responseType)
	}
}

func TestCanonicalizeResponseType(t *testing.T) {
	assert.Equal(t, "code id_token", CanonicalizeResponseType("  code \t id_token "))
	// Canonicalization never reorders components.
	assert.Equal(t, "token id_token", CanonicalizeResponseType("token  id_token"))
}

func TestResponseModeAllowed(t *testing.T) {
	assert.True(t, ResponseModeAllowed(FlowAuthorizationCode, ResponseModeQuery))
	assert.True(t, ResponseModeAllowed(FlowAuthorizationCode, ResponseModeFormPost))
	assert.False(t, ResponseModeAllowed(FlowAuthorizationCode, ResponseModeFragment))
	assert.True(t, ResponseModeAllowed(FlowImplicit, ResponseModeFragment))
	assert.False(t, ResponseModeAllowed(FlowImplicit, ResponseModeQuery))
	assert.False(t, ResponseModeAllowed(FlowHybrid, ResponseModeQuery))
}

func TestDefaultResponseMode(t *testing.T) {
	assert.Equal(t, ResponseModeQuery, DefaultResponseMode(FlowAuthorizationCode))
	assert.Equal(t, ResponseModeFragment, DefaultResponseMode(FlowImplicit))
	assert.Equal(t, ResponseModeFragment, DefaultResponseMode(FlowHybrid))
}

func TestResponseTypeComponents(t *testing.T) {
	assert.True(t, ResponseTypeHasCode("code id_token token"))
	assert.True(t, ResponseTypeHasIDToken("code id_token"))
	assert.True(t, ResponseTypeHasToken("id_token token"))
	assert.False(t, ResponseTypeHasToken("code id_token"))
	// "id_token" must not satisfy a "token" component check.
	assert.False(t, ResponseTypeHasToken("id_token"))
}

package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"assent/internal/oidc"
)

// VerifyCodeVerifier checks a PKCE verifier against the challenge recorded
// at authorize time. Comparison is constant-time for both methods.
func VerifyCodeVerifier(challenge string, method oidc.CodeChallengeMethod, verifier string) bool {
	if len(verifier) < oidc.CodeVerifierMinLength || len(verifier) > oidc.CodeVerifierMaxLength {
		return false
	}

	switch method {
	case oidc.CodeChallengePlain:
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) == 1
	case oidc.CodeChallengeS256:
		digest := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(digest[:])
		return subtle.ConstantTimeCompare([]byte(challenge), []byte(derived)) == 1
	}
	return false
}

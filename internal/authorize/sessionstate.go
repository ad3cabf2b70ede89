package authorize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/url"

	dErrors "assent/pkg/domain-errors"
)

// ComputeSessionState builds the OIDC session-management session_state value:
// base64url(SHA-256(client_id + origin + session_id + salt)) "." salt.
// The origin is derived from the redirect URI with default ports stripped, so
// "https://app.example.com:443/cb" and "https://app.example.com/cb" produce
// the same value.
func ComputeSessionState(clientID, redirectURI, sessionID string) (string, error) {
	origin, err := originOf(redirectURI)
	if err != nil {
		return "", err
	}

	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "session state salt generation failed")
	}
	salt := base64.RawURLEncoding.EncodeToString(saltBytes)

	digest := sha256.Sum256([]byte(clientID + origin + sessionID + salt))
	return base64.RawURLEncoding.EncodeToString(digest[:]) + "." + salt, nil
}

func originOf(redirectURI string) (string, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvariantViolation, "validated redirect uri failed to parse")
	}

	host := parsed.Host
	switch {
	case parsed.Scheme == "https" && parsed.Port() == "443":
		host = parsed.Hostname()
	case parsed.Scheme == "http" && parsed.Port() == "80":
		host = parsed.Hostname()
	}
	return parsed.Scheme + "://" + host, nil
}

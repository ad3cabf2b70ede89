package client

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ParsedSecret is a credential presented by the caller, before verification.
type ParsedSecret struct {
	Type       SecretType
	Credential string
}

// HashSecret produces the stored bcrypt hash for a shared secret. Used by
// seeding and registration tooling; never on the request path.
func HashSecret(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret checks a presented credential against the client's registered
// secrets. Expired secrets never match.
func VerifySecret(secrets []Secret, presented ParsedSecret, now time.Time) bool {
	for _, secret := range secrets {
		if secret.Type != presented.Type {
			continue
		}
		if !secret.Expiration.IsZero() && secret.Expiration.Before(now) {
			continue
		}
		if matchSecret(secret, presented) {
			return true
		}
	}
	return false
}

func matchSecret(registered Secret, presented ParsedSecret) bool {
	switch registered.Type {
	case SecretSharedBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(registered.Value), []byte(presented.Credential)) == nil
	case SecretX509Thumbprint:
		// Thumbprints are public values but compared constant-time anyway.
		return subtle.ConstantTimeCompare([]byte(registered.Value), []byte(presented.Credential)) == 1
	default:
		return false
	}
}

// ThumbprintSHA256 encodes a certificate thumbprint the way it is stored.
func ThumbprintSHA256(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Package profile defines the subject-facing collaborator contract: activity
// checks and claim resolution for token issuance.
package profile

import (
	"context"

	"assent/internal/oidc"
)

// Service is implemented by the hosting application's user store.
type Service interface {
	// IsActive reports whether the subject may still be issued tokens for
	// the client (not deleted, not locked out).
	IsActive(ctx context.Context, subject oidc.ClaimSet, clientID string) (bool, error)
	// GetProfileData resolves the subject's claims for the requested claim
	// types. An empty request returns every available claim.
	GetProfileData(ctx context.Context, subject oidc.ClaimSet, claimTypes []string) ([]oidc.Claim, error)
}

// PasswordValidator verifies resource-owner credentials for the password
// grant. On success it returns the authenticated subject.
type PasswordValidator interface {
	ValidateCredentials(ctx context.Context, username, password string) (oidc.ClaimSet, error)
}

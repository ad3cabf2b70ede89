package grants

import "context"

// Store error contract: all implementations return sentinel.ErrNotFound
// (wrapped) for missing entities and wrapped infrastructure errors otherwise.
// One-time-use enforcement is the store's job — Consume and UpdateRotate must
// be atomic (conditional delete / rotate). Validators treat not-found as
// already-consumed.

// AuthorizationCodeStore persists one-time authorization codes.
type AuthorizationCodeStore interface {
	Store(ctx context.Context, code *AuthorizationCode) error
	// Consume atomically removes and returns the code. A second call with
	// the same handle returns sentinel.ErrNotFound.
	Consume(ctx context.Context, code string) (*AuthorizationCode, error)
}

// RefreshTokenStore persists refresh-token handles and owns rotation policy.
type RefreshTokenStore interface {
	Store(ctx context.Context, token *RefreshToken) error
	Get(ctx context.Context, handle string) (*RefreshToken, error)
	// UpdateRotate applies the update and returns the handle the caller
	// should hand back to the client. Implementations decide whether that is
	// a fresh handle (one-time-use rotation) or the same one.
	UpdateRotate(ctx context.Context, handle string, updated *RefreshToken) (string, error)
	Remove(ctx context.Context, handle string) error
	RemoveBySubjectAndClient(ctx context.Context, subjectID, clientID string) error
}

// ReferenceTokenStore persists opaque access-token handles.
type ReferenceTokenStore interface {
	Store(ctx context.Context, token *ReferenceToken) error
	Get(ctx context.Context, handle string) (*ReferenceToken, error)
	Remove(ctx context.Context, handle string) error
	RemoveBySubjectAndClient(ctx context.Context, subjectID, clientID string) error
}

// DeviceFlowStore persists device codes, addressable by both the device code
// and the short user code.
type DeviceFlowStore interface {
	StoreDeviceCode(ctx context.Context, code *DeviceCode) error
	FindByUserCode(ctx context.Context, userCode string) (*DeviceCode, error)
	FindByDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error)
	Update(ctx context.Context, code *DeviceCode) error
	RemoveByDeviceCode(ctx context.Context, deviceCode string) error
}

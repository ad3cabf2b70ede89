package client

import "context"

// Store resolves client registrations. FindEnabledClientByID returns
// sentinel.ErrNotFound (wrapped) for unknown or disabled clients so callers
// cannot distinguish the two cases.
type Store interface {
	FindEnabledClientByID(ctx context.Context, clientID string) (*Client, error)
}

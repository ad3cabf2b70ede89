package postgres

import (
	"context"

	"assent/internal/grants"
)

// RefreshTokens adapts Store to the grants.RefreshTokenStore contract. The
// authorization-code side of Store already satisfies
// grants.AuthorizationCodeStore directly.
type RefreshTokens struct {
	store *Store
}

func NewRefreshTokens(store *Store) *RefreshTokens {
	return &RefreshTokens{store: store}
}

func (r *RefreshTokens) Store(ctx context.Context, token *grants.RefreshToken) error {
	return r.store.StoreRefreshToken(ctx, token)
}

func (r *RefreshTokens) Get(ctx context.Context, handle string) (*grants.RefreshToken, error) {
	return r.store.GetRefreshToken(ctx, handle)
}

func (r *RefreshTokens) UpdateRotate(ctx context.Context, handle string, updated *grants.RefreshToken) (string, error) {
	return r.store.UpdateRotateRefreshToken(ctx, handle, updated)
}

func (r *RefreshTokens) Remove(ctx context.Context, handle string) error {
	return r.store.RemoveRefreshToken(ctx, handle)
}

func (r *RefreshTokens) RemoveBySubjectAndClient(ctx context.Context, subjectID, clientID string) error {
	return r.store.RemoveRefreshTokensBySubjectAndClient(ctx, subjectID, clientID)
}

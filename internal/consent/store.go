package consent

import "context"

// Store persists remembered grants. Find returns sentinel.ErrNotFound when no
// grant exists for the pair.
type Store interface {
	Find(ctx context.Context, subjectID, clientID string) (RememberedGrant, error)
	Save(ctx context.Context, grant RememberedGrant) error
	Remove(ctx context.Context, subjectID, clientID string) error
}

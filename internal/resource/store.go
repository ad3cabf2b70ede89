package resource

import "context"

// Store looks up registered resources. Implementations must return only
// resources whose names were requested; filtering for enablement happens in
// the validator so stores stay dumb.
type Store interface {
	FindResourcesByScopeNames(ctx context.Context, scopeNames []string) (Resources, error)
	FindEnabledAll(ctx context.Context) (Resources, error)
}

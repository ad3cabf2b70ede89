package resource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore reads resource registrations from PostgreSQL.
//
// Schema:
//
//	identity_resources(name TEXT PRIMARY KEY, enabled BOOL, required BOOL, claim_types TEXT[])
//	api_scopes(name TEXT PRIMARY KEY, enabled BOOL, required BOOL, claim_types TEXT[],
//	           allow_unrestricted_introspection BOOL)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindResourcesByScopeNames(ctx context.Context, scopeNames []string) (Resources, error) {
	if len(scopeNames) == 0 {
		return Resources{}, nil
	}

	identity, err := s.queryIdentityResources(ctx, scopeNames)
	if err != nil {
		return Resources{}, err
	}
	apiScopes, err := s.queryAPIScopes(ctx, scopeNames)
	if err != nil {
		return Resources{}, err
	}
	return NewResources(identity, apiScopes)
}

func (s *PostgresStore) FindEnabledAll(ctx context.Context) (Resources, error) {
	identity, err := s.queryIdentityResources(ctx, nil)
	if err != nil {
		return Resources{}, err
	}
	apiScopes, err := s.queryAPIScopes(ctx, nil)
	if err != nil {
		return Resources{}, err
	}
	resources, err := NewResources(identity, apiScopes)
	if err != nil {
		return Resources{}, err
	}
	return resources.FilterEnabled(), nil
}

func (s *PostgresStore) queryIdentityResources(ctx context.Context, names []string) ([]IdentityResource, error) {
	query := `SELECT name, enabled, required, claim_types FROM identity_resources`
	args := []any{}
	if names != nil {
		query += ` WHERE name = ANY($1)`
		args = append(args, pq.Array(names))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query identity resources: %w", err)
	}
	defer rows.Close()

	var out []IdentityResource
	for rows.Next() {
		var res IdentityResource
		if err := rows.Scan(&res.Name, &res.Enabled, &res.Required, pq.Array(&res.ClaimTypes)); err != nil {
			return nil, fmt.Errorf("scan identity resource: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *PostgresStore) queryAPIScopes(ctx context.Context, names []string) ([]APIScope, error) {
	query := `SELECT name, enabled, required, claim_types, allow_unrestricted_introspection FROM api_scopes`
	args := []any{}
	if names != nil {
		query += ` WHERE name = ANY($1)`
		args = append(args, pq.Array(names))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query api scopes: %w", err)
	}
	defer rows.Close()

	var out []APIScope
	for rows.Next() {
		var scope APIScope
		if err := rows.Scan(&scope.Name, &scope.Enabled, &scope.Required,
			pq.Array(&scope.ClaimTypes), &scope.AllowUnrestrictedIntrospection); err != nil {
			return nil, fmt.Errorf("scan api scope: %w", err)
		}
		out = append(out, scope)
	}
	return out, rows.Err()
}

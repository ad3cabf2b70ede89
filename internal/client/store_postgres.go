package client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"assent/internal/oidc"
	"assent/pkg/platform/sentinel"
)

// PostgresStore reads client registrations from PostgreSQL.
//
// Schema (seconds for lifetimes):
//
//	clients(client_id TEXT PRIMARY KEY, name TEXT, enabled BOOL,
//	        require_client_secret BOOL, allowed_grant_types TEXT[],
//	        allowed_extension_grants TEXT[], allowed_scopes TEXT[],
//	        allow_offline_access BOOL, redirect_uris TEXT[],
//	        post_logout_redirect_uris TEXT[], idp_filter TEXT[],
//	        enable_local_login BOOL, require_consent BOOL,
//	        allow_remember_consent BOOL, require_pkce BOOL,
//	        allow_plain_pkce BOOL, refresh_updates_claims BOOL,
//	        access_token_type TEXT,
//	        access_token_lifetime INT, identity_token_lifetime INT,
//	        authorization_code_lifetime INT, refresh_token_lifetime INT,
//	        device_code_lifetime INT, device_polling_interval INT)
//	client_secrets(client_id TEXT REFERENCES clients, type TEXT, value TEXT,
//	               description TEXT, expiration TIMESTAMPTZ NULL)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindEnabledClientByID(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	var grants []string
	var accessSec, identitySec, codeSec, refreshSec, deviceSec, intervalSec int64
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, name, enabled, require_client_secret,
		       allowed_grant_types, allowed_extension_grants, allowed_scopes,
		       allow_offline_access, redirect_uris, post_logout_redirect_uris,
		       idp_filter, enable_local_login, require_consent,
		       allow_remember_consent, require_pkce, allow_plain_pkce,
		       refresh_updates_claims, access_token_type, access_token_lifetime,
		       identity_token_lifetime, authorization_code_lifetime,
		       refresh_token_lifetime, device_code_lifetime,
		       device_polling_interval
		FROM clients
		WHERE client_id = $1 AND enabled = TRUE
	`, clientID).Scan(
		&c.ClientID, &c.Name, &c.Enabled, &c.RequireClientSecret,
		pq.Array(&grants), pq.Array(&c.AllowedExtensionGrants), pq.Array(&c.AllowedScopes),
		&c.AllowOfflineAccess, pq.Array(&c.RedirectURIs), pq.Array(&c.PostLogoutRedirectURIs),
		pq.Array(&c.IdentityProviderFilter), &c.EnableLocalLogin, &c.RequireConsent,
		&c.AllowRememberConsent, &c.RequirePKCE, &c.AllowPlainTextPKCE,
		&c.UpdateAccessTokenClaimsOnRefresh, &c.AccessTokenType, &accessSec,
		&identitySec, &codeSec, &refreshSec, &deviceSec, &intervalSec,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("client %q: %w", clientID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query client: %w", err)
	}

	for _, g := range grants {
		c.AllowedGrantTypes = append(c.AllowedGrantTypes, oidc.GrantType(g))
	}
	c.AccessTokenLifetime = time.Duration(accessSec) * time.Second
	c.IdentityTokenLifetime = time.Duration(identitySec) * time.Second
	c.AuthorizationCodeLifetime = time.Duration(codeSec) * time.Second
	c.RefreshTokenLifetime = time.Duration(refreshSec) * time.Second
	c.DeviceCodeLifetime = time.Duration(deviceSec) * time.Second
	c.DevicePollingInterval = time.Duration(intervalSec) * time.Second

	if err := s.loadSecrets(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) loadSecrets(ctx context.Context, c *Client) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, value, description, expiration
		FROM client_secrets
		WHERE client_id = $1
	`, c.ClientID)
	if err != nil {
		return fmt.Errorf("query client secrets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			secret     Secret
			expiration sql.NullTime
		)
		if err := rows.Scan(&secret.Type, &secret.Value, &secret.Description, &expiration); err != nil {
			return fmt.Errorf("scan client secret: %w", err)
		}
		if expiration.Valid {
			secret.Expiration = expiration.Time
		}
		c.Secrets = append(c.Secrets, secret)
	}
	return rows.Err()
}

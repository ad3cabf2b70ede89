// Package postgres persists authorization codes and refresh tokens in
// PostgreSQL via pgx. One-time-use is enforced with conditional
// DELETE ... RETURNING so concurrent consumers cannot both win.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"assent/internal/grants"
	"assent/pkg/platform/sentinel"
)

// Store implements grants.AuthorizationCodeStore and grants.RefreshTokenStore.
//
// Schema:
//
//	authorization_codes(code TEXT PRIMARY KEY, payload JSONB, expires_at TIMESTAMPTZ)
//	refresh_tokens(handle TEXT PRIMARY KEY, client_id TEXT, subject_id TEXT,
//	               payload JSONB, expires_at TIMESTAMPTZ)
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Store(ctx context.Context, code *grants.AuthorizationCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal authorization code: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO authorization_codes (code, payload, expires_at)
		VALUES ($1, $2, $3)
	`, code.Code, payload, code.CreationTime.Add(code.Lifetime))
	if err != nil {
		return fmt.Errorf("store authorization code: %w", err)
	}
	return nil
}

// Consume deletes and returns the code atomically. A replay sees zero rows
// and reads as not-found.
func (s *Store) Consume(ctx context.Context, code string) (*grants.AuthorizationCode, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		DELETE FROM authorization_codes WHERE code = $1 RETURNING payload
	`, code).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("authorization code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume authorization code: %w", err)
	}

	var record grants.AuthorizationCode
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal authorization code: %w", err)
	}
	return &record, nil
}

func (s *Store) StoreRefreshToken(ctx context.Context, token *grants.RefreshToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal refresh token: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (handle, client_id, subject_id, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, token.Handle, token.ClientID, token.SubjectID(), payload, token.CreationTime.Add(token.Lifetime))
	if err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, handle string) (*grants.RefreshToken, error) {
	var payload []byte
	var expiresAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT payload, expires_at FROM refresh_tokens WHERE handle = $1
	`, handle).Scan(&payload, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	var token grants.RefreshToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("unmarshal refresh token: %w", err)
	}
	return &token, nil
}

// UpdateRotateRefreshToken deletes the old handle and inserts the updated
// token under a fresh one inside a single transaction. A replayed handle
// deletes zero rows and reads as not-found.
func (s *Store) UpdateRotateRefreshToken(ctx context.Context, handle string, updated *grants.RefreshToken) (string, error) {
	next := *updated
	next.Handle = grants.NewHandle()

	payload, err := json.Marshal(&next)
	if err != nil {
		return "", fmt.Errorf("marshal refresh token: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE handle = $1`, handle)
	if err != nil {
		return "", fmt.Errorf("delete rotated handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (handle, client_id, subject_id, payload, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, next.Handle, next.ClientID, next.SubjectID(), payload, next.CreationTime.Add(next.Lifetime))
	if err != nil {
		return "", fmt.Errorf("insert rotated token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit rotate: %w", err)
	}
	return next.Handle, nil
}

func (s *Store) RemoveRefreshToken(ctx context.Context, handle string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE handle = $1`, handle)
	if err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func (s *Store) RemoveRefreshTokensBySubjectAndClient(ctx context.Context, subjectID, clientID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE subject_id = $1 AND client_id = $2
	`, subjectID, clientID)
	if err != nil {
		return fmt.Errorf("remove refresh tokens by owner: %w", err)
	}
	return nil
}

// DeleteExpired clears expired rows from both tables.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM authorization_codes WHERE expires_at < $1`, now); err != nil {
		return fmt.Errorf("delete expired codes: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now); err != nil {
		return fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return nil
}

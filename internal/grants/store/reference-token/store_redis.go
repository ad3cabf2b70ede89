package referencetoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"assent/internal/grants"
	"assent/pkg/platform/sentinel"
)

const (
	tokenKeyPrefix = "rt:handle:"
	ownerKeyPrefix = "rt:owner:"
)

// RedisStore persists reference tokens in Redis with TTL matching the token
// lifetime. An owner index set supports revocation cascades per
// subject+client pair.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func ownerKey(subjectID, clientID string) string {
	return ownerKeyPrefix + subjectID + ":" + clientID
}

func (s *RedisStore) Store(ctx context.Context, token *grants.ReferenceToken) error {
	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal reference token: %w", err)
	}

	ttl := time.Until(token.CreationTime.Add(token.Lifetime))
	if ttl <= 0 {
		return fmt.Errorf("reference token already expired: %w", sentinel.ErrInvalidState)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+token.Handle, payload, ttl)
	pipe.SAdd(ctx, ownerKey(token.SubjectID, token.ClientID), token.Handle)
	pipe.Expire(ctx, ownerKey(token.SubjectID, token.ClientID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store reference token: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, handle string) (*grants.ReferenceToken, error) {
	payload, err := s.client.Get(ctx, tokenKeyPrefix+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reference token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get reference token: %w", err)
	}

	var token grants.ReferenceToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("unmarshal reference token: %w", err)
	}
	return &token, nil
}

func (s *RedisStore) Remove(ctx context.Context, handle string) error {
	token, err := s.Get(ctx, handle)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, tokenKeyPrefix+handle)
	pipe.SRem(ctx, ownerKey(token.SubjectID, token.ClientID), handle)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove reference token: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveBySubjectAndClient(ctx context.Context, subjectID, clientID string) error {
	handles, err := s.client.SMembers(ctx, ownerKey(subjectID, clientID)).Result()
	if err != nil {
		return fmt.Errorf("list owner tokens: %w", err)
	}
	if len(handles) == 0 {
		return nil
	}

	keys := make([]string, 0, len(handles)+1)
	for _, handle := range handles {
		keys = append(keys, tokenKeyPrefix+handle)
	}
	keys = append(keys, ownerKey(subjectID, clientID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("remove owner tokens: %w", err)
	}
	return nil
}

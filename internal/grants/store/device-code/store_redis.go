package devicecode

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
	deviceKeyPrefix = "dc:device:"
	userKeyPrefix   = "dc:user:"
)

// RedisStore persists device codes in Redis. Both keys carry the remaining
// grant lifetime as TTL so abandoned flows expire on their own.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) StoreDeviceCode(ctx context.Context, code *grants.DeviceCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal device code: %w", err)
	}

	ttl := time.Until(code.CreationTime.Add(code.Lifetime))
	if ttl <= 0 {
		return fmt.Errorf("device code already expired: %w", sentinel.ErrInvalidState)
	}

	// The user-code key is claimed with NX so a generator collision surfaces
	// as ErrConflict and the caller retries with a fresh user code.
	claimed, err := s.client.SetNX(ctx, userKeyPrefix+code.UserCode, code.DeviceCode, ttl).Result()
	if err != nil {
		return fmt.Errorf("claim user code: %w", err)
	}
	if !claimed {
		return fmt.Errorf("user code collision: %w", sentinel.ErrConflict)
	}

	if err := s.client.Set(ctx, deviceKeyPrefix+code.DeviceCode, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store device code: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByUserCode(ctx context.Context, userCode string) (*grants.DeviceCode, error) {
	deviceCode, err := s.client.Get(ctx, userKeyPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("user code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user code: %w", err)
	}
	return s.FindByDeviceCode(ctx, deviceCode)
}

func (s *RedisStore) FindByDeviceCode(ctx context.Context, deviceCode string) (*grants.DeviceCode, error) {
	payload, err := s.client.Get(ctx, deviceKeyPrefix+deviceCode).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("device code not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get device code: %w", err)
	}

	var code grants.DeviceCode
	if err := json.Unmarshal(payload, &code); err != nil {
		return nil, fmt.Errorf("unmarshal device code: %w", err)
	}
	return &code, nil
}

func (s *RedisStore) Update(ctx context.Context, code *grants.DeviceCode) error {
	key := deviceKeyPrefix + code.DeviceCode
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("device code ttl: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("device code not found: %w", sentinel.ErrNotFound)
	}

	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal device code: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("update device code: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveByDeviceCode(ctx context.Context, deviceCode string) error {
	code, err := s.FindByDeviceCode(ctx, deviceCode)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, deviceKeyPrefix+deviceCode, userKeyPrefix+code.UserCode).Err(); err != nil {
		return fmt.Errorf("remove device code: %w", err)
	}
	return nil
}

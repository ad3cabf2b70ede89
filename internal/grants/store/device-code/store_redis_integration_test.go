//go:build integration

package devicecode_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"assent/internal/grants"
	devicecode "assent/internal/grants/store/device-code"
	"assent/internal/oidc"
	"assent/pkg/platform/sentinel"
	"assent/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *devicecode.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = devicecode.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) newDeviceCode(userCode string) *grants.DeviceCode {
	return &grants.DeviceCode{
		DeviceCode:      grants.NewHandle(),
		UserCode:        userCode,
		ClientID:        "device",
		RequestedScopes: []string{"openid", "api1"},
		IsOpenID:        true,
		State:           grants.DeviceCodePending,
		CreationTime:    time.Now(),
		Lifetime:        5 * time.Minute,
		Interval:        5 * time.Second,
	}
}

func (s *RedisStoreSuite) TestStoreAndLookup() {
	ctx := context.Background()
	code := s.newDeviceCode("123456789")

	s.Require().NoError(s.store.StoreDeviceCode(ctx, code))

	byDevice, err := s.store.FindByDeviceCode(ctx, code.DeviceCode)
	s.Require().NoError(err)
	s.Equal(code.UserCode, byDevice.UserCode)
	s.Equal(grants.DeviceCodePending, byDevice.State)

	byUser, err := s.store.FindByUserCode(ctx, code.UserCode)
	s.Require().NoError(err)
	s.Equal(code.DeviceCode, byUser.DeviceCode)
}

func (s *RedisStoreSuite) TestUserCodeCollision() {
	ctx := context.Background()

	s.Require().NoError(s.store.StoreDeviceCode(ctx, s.newDeviceCode("111111111")))

	err := s.store.StoreDeviceCode(ctx, s.newDeviceCode("111111111"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *RedisStoreSuite) TestUpdatePreservesState() {
	ctx := context.Background()
	code := s.newDeviceCode("222222222")
	s.Require().NoError(s.store.StoreDeviceCode(ctx, code))

	code.Authorize(oidc.NewSubject("user-1", oidc.LocalIdentityProvider, time.Now()), "sess-1", code.RequestedScopes)
	s.Require().NoError(s.store.Update(ctx, code))

	got, err := s.store.FindByDeviceCode(ctx, code.DeviceCode)
	s.Require().NoError(err)
	s.Equal(grants.DeviceCodeAuthorized, got.State)
	sub, err := got.Subject.SubjectID()
	s.Require().NoError(err)
	s.Equal("user-1", sub)
}

func (s *RedisStoreSuite) TestRemoveClearsBothKeys() {
	ctx := context.Background()
	code := s.newDeviceCode("333333333")
	s.Require().NoError(s.store.StoreDeviceCode(ctx, code))

	s.Require().NoError(s.store.RemoveByDeviceCode(ctx, code.DeviceCode))

	_, err := s.store.FindByDeviceCode(ctx, code.DeviceCode)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByUserCode(ctx, code.UserCode)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

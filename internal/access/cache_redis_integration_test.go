//go:build integration

package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = NewRedisCache(s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()
	perms := map[Permission]bool{ComplianceRead: true, ComplianceUpdate: true}

	s.cache.Set(ctx, "user-1", perms)

	got, ok := s.cache.Get(ctx, "user-1")
	s.Require().True(ok)
	s.Equal(perms, got)
}

func (s *RedisCacheSuite) TestMissAndInvalidate() {
	ctx := context.Background()

	_, ok := s.cache.Get(ctx, "user-1")
	s.False(ok)

	s.cache.Set(ctx, "user-1", map[Permission]bool{ComplianceRead: true})
	s.cache.Set(ctx, "user-2", map[Permission]bool{ComplianceRead: true})
	s.cache.Invalidate(ctx, "user-1")

	_, ok = s.cache.Get(ctx, "user-1")
	s.False(ok)
	_, ok = s.cache.Get(ctx, "user-2")
	s.True(ok)
}

func (s *RedisCacheSuite) TestExpiry() {
	ctx := context.Background()
	short := NewRedisCache(s.redis.Client, 50*time.Millisecond)

	short.Set(ctx, "user-1", map[Permission]bool{ComplianceRead: true})
	_, ok := short.Get(ctx, "user-1")
	s.Require().True(ok)

	time.Sleep(120 * time.Millisecond)
	_, ok = short.Get(ctx, "user-1")
	s.False(ok)
}

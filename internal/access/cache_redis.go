package access

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the permission cache with Redis so a multi-process
// deployment shares one invalidation domain. A Redis failure degrades to a
// cache miss; permission resolution falls back to the catalog, which is
// always safe.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) key(actorID string) string {
	return "conforma:perms:" + actorID
}

func (c *RedisCache) Get(ctx context.Context, actorID string) (map[Permission]bool, bool) {
	raw, err := c.client.Get(ctx, c.key(actorID)).Bytes()
	if err != nil {
		return nil, false
	}
	var perms []Permission
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false
	}
	set := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		set[p] = true
	}
	return set, true
}

func (c *RedisCache) Set(ctx context.Context, actorID string, perms map[Permission]bool) {
	list := make([]Permission, 0, len(perms))
	for p := range perms {
		list = append(list, p)
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(actorID), raw, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, actorID string) {
	c.client.Del(ctx, c.key(actorID))
}

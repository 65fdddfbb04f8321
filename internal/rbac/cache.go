package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const versionKey = "rbac:perms:ver"

// PermissionCache caches effective permission sets per user in Redis. A miss
// goes through singleflight so concurrent validations for the same user hit
// the database once. Invalidation bumps a namespace version instead of
// scanning user keys.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewPermissionCache constructs a cache. A nil client disables caching and
// every Resolve call falls through to the loader.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

// Resolve returns the cached permission set for a user, loading and storing
// it on miss. Redis failures degrade to a direct load.
func (c *PermissionCache) Resolve(ctx context.Context, userID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key, err := c.userKey(ctx, userID)
	if err != nil {
		return loader(ctx)
	}

	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		var perms []string
		if err := json.Unmarshal([]byte(raw), &perms); err == nil {
			return perms, nil
		}
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		perms, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(perms); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// Invalidate drops every cached permission set by bumping the namespace
// version. Called after any role or catalog mutation.
func (c *PermissionCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey).Err()
}

func (c *PermissionCache) userKey(ctx context.Context, userID int64) (string, error) {
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("rbac:perms:v%d:user:%d", ver, userID), nil
}

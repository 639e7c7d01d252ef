package cache

import (
	"context"
	"errors"
	"time"

	"digitlotto/domain/interfaces"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// IdentityCache memoizes handle to public key resolution. Redis failures fall
// through to the wrapped resolver.
type IdentityCache struct {
	client   *redis.Client
	resolver interfaces.IdentityResolver
	ttl      time.Duration
}

// NewIdentityCache wraps resolver with a redis cache of the given ttl
func NewIdentityCache(client *redis.Client, resolver interfaces.IdentityResolver, ttl time.Duration) *IdentityCache {
	return &IdentityCache{client: client, resolver: resolver, ttl: ttl}
}

func identityKey(handle string) string { return "lotto:identity:" + handle }

// ResolveIdentity implements interfaces.IdentityResolver
func (c *IdentityCache) ResolveIdentity(ctx context.Context, handle string) (string, error) {
	key := identityKey(handle)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, redis.Nil):
		log.WithError(err).WithField("handle", handle).Warn("Identity cache read failed")
	}

	publicKey, err := c.resolver.ResolveIdentity(ctx, handle)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, publicKey, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("handle", handle).Warn("Identity cache write failed")
	}
	return publicKey, nil
}

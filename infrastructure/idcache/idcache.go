// Package idcache is a read-through cache in front of the graph store's
// IdentityMap lookups (spec §4.1), cutting repeated external-id resolution
// round-trips for sources seen often in a single ingestion run (e.g. a
// backfill replaying many events from the same Discogs release group).
package idcache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/chainledger/musicgraph/domain/graph"
)

// Cache wraps a Redis client as a read-through cache keyed by
// source:kind:externalId, falling back to a caller-supplied resolver
// function on miss and populating the cache with the result.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Cache over an already-configured Redis client. ttl bounds
// how long a resolved mapping is trusted before a fresh IdentityMap lookup
// is required — mappings are supposed to be permanent once established
// (spec §4.1 "created but never rewritten"), but a bounded TTL keeps this
// cache from diverging forever if an operator ever needs to correct a bad
// mapping at the source of truth.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(source string, kind graph.Kind, externalID string) string {
	return "idmap:" + source + ":" + string(kind) + ":" + externalID
}

// Resolver matches identity.Resolver's lookup signature, letting Cache sit
// in front of any graphstore.Tx without either package importing the
// other.
type Resolver interface {
	ResolveIdentity(ctx context.Context, source string, kind graph.Kind, externalID string) (string, bool, error)
}

// ResolveIdentity checks the Redis cache first, falls through to next on a
// miss, and populates the cache with a hit before returning. Because it
// takes next as an extra argument, Cache itself does not satisfy Resolver.
func (c *Cache) ResolveIdentity(ctx context.Context, next Resolver, source string, kind graph.Kind, externalID string) (string, bool, error) {
	key := cacheKey(source, kind, externalID)
	if canonicalID, err := c.client.Get(ctx, key).Result(); err == nil {
		return canonicalID, true, nil
	} else if err != redis.Nil {
		// a transient cache error never blocks resolution — fall through
		// to the authoritative lookup.
		_ = err
	}

	canonicalID, found, err := next.ResolveIdentity(ctx, source, kind, externalID)
	if err != nil {
		return "", false, err
	}
	if found {
		_ = c.client.Set(ctx, key, canonicalID, c.ttl).Err()
	}
	return canonicalID, found, nil
}

// Invalidate drops a cached mapping, used when a merge changes which
// canonical id an external reference should resolve to.
func (c *Cache) Invalidate(ctx context.Context, source string, kind graph.Kind, externalID string) error {
	return c.client.Del(ctx, cacheKey(source, kind, externalID)).Err()
}

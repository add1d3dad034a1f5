// Package dedupcache implements the bounded in-memory half of spec §4.8
// step 1's dedup check: "Dedup state lives in a bounded hash set plus a
// persistent 'processed' marker on the stored event." The hash set is
// this package; the persistent marker is infrastructure/eventstore.
package dedupcache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is a bounded set of already-seen content hashes.
type Cache struct {
	lru *lru.Cache[string, struct{}]
}

// New builds a Cache holding at most size entries, evicting least-recently
// used hashes once full (spec §9 "explicit ProcessedEvents set... no global
// mutable bookkeeping" — eviction bounds memory without becoming a silent
// correctness issue: a cache miss always falls through to the event
// store's persistent marker, per intake's two-tier check).
func New(size int) (*Cache, error) {
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Seen reports whether hash has already been recorded.
func (c *Cache) Seen(hash string) bool {
	_, ok := c.lru.Get(hash)
	return ok
}

// Mark records hash as seen.
func (c *Cache) Mark(hash string) {
	c.lru.Add(hash, struct{}{})
}

package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache is a TTL-based in-memory cache with stale-while-revalidate.
// Uses sync.Map for lock-free reads on the hot path.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry, keyed by full API key
	ttl   time.Duration
}

type cacheEntry struct {
	caller     *Caller
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheResult holds the result of a cache lookup.
type CacheResult struct {
	Caller       *Caller
	Hit          bool
	NeedsRefresh bool
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl}
}

// Get never blocks. A stale entry is still returned; exactly one caller
// sees NeedsRefresh for it.
func (c *AuthCache) Get(apiKey string) CacheResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return CacheResult{}
	}

	entry := val.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return CacheResult{Caller: entry.caller, Hit: true}
	}

	return CacheResult{
		Caller:       entry.caller,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a caller with a fresh TTL.
func (c *AuthCache) Set(apiKey string, caller *Caller) {
	c.store.Store(apiKey, &cacheEntry{
		caller:    caller,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes an entry, e.g. after the key was revoked.
func (c *AuthCache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}

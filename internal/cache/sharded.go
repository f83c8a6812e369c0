// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package cache provides a thread-safe sharded LRU cache, used to
// memoize shader translation results across pipeline reloads.
package cache

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Default configuration constants.
const (
	// DefaultShardCount is the number of shards for reduced lock contention.
	// Must be a power of 2 for fast modulo via bitwise AND.
	DefaultShardCount = 16

	// DefaultCapacity is the default maximum entries per shard.
	DefaultCapacity = 64

	// shardMask is used for fast shard selection (DefaultShardCount - 1).
	shardMask = DefaultShardCount - 1
)

// Hasher computes a hash for a key, used for shard selection.
type Hasher[K any] func(K) uint64

// StringHasher computes the FNV-1a hash of a string key.
func StringHasher(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}

// Sharded is a thread-safe, sharded LRU cache.
//
// Each shard has its own mutex, so concurrent lookups of different keys
// rarely contend. Eviction is LRU per shard with a fixed capacity. The
// shard map points directly at eviction-list nodes, which carry the
// values.
type Sharded[K comparable, V any] struct {
	shards   [DefaultShardCount]*shard[K, V]
	hasher   Hasher[K]
	capacity int // per-shard

	hits   atomic.Uint64
	misses atomic.Uint64
}

// shard is a single shard of the cache.
type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*lruNode[K, V]
	lru     *lruList[K, V]
}

// NewSharded creates a sharded cache with the given per-shard capacity.
// If capacity <= 0, DefaultCapacity is used.
func NewSharded[K comparable, V any](capacity int, hasher Hasher[K]) *Sharded[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Sharded[K, V]{hasher: hasher, capacity: capacity}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{
			entries: make(map[K]*lruNode[K, V]),
			lru:     &lruList[K, V]{},
		}
	}
	return c
}

func (c *Sharded[K, V]) getShard(key K) *shard[K, V] {
	return c.shards[c.hasher(key)&shardMask]
}

// Get retrieves a cached value. A hit moves the entry to the front of
// its shard's LRU list.
func (c *Sharded[K, V]) Get(key K) (V, bool) {
	sh := c.getShard(key)

	sh.mu.Lock()
	node, ok := sh.entries[key]
	if !ok {
		sh.mu.Unlock()
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	sh.lru.MoveToFront(node)
	value := node.value
	sh.mu.Unlock()

	c.hits.Add(1)
	return value, true
}

// Set stores a value, evicting the least recently used entries if the
// shard is at capacity. The value is stored as-is, not copied.
func (c *Sharded[K, V]) Set(key K, value V) {
	sh := c.getShard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.entries[key]; ok {
		existing.value = value
		sh.lru.MoveToFront(existing)
		return
	}

	for sh.lru.Len() >= c.capacity {
		oldest, ok := sh.lru.RemoveOldest()
		if !ok {
			break
		}
		delete(sh.entries, oldest)
	}

	sh.entries[key] = sh.lru.PushFront(key, value)
}

// Delete removes an entry, reporting whether it was present.
func (c *Sharded[K, V]) Delete(key K) bool {
	sh := c.getShard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	node, ok := sh.entries[key]
	if !ok {
		return false
	}
	sh.lru.Remove(node)
	delete(sh.entries, key)
	return true
}

// Clear removes all entries.
func (c *Sharded[K, V]) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.entries = make(map[K]*lruNode[K, V])
		sh.lru.Clear()
		sh.mu.Unlock()
	}
}

// Len returns the total number of entries across all shards.
func (c *Sharded[K, V]) Len() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}

// Stats holds cache hit/miss counters.
type Stats struct {
	Len    int
	Hits   uint64
	Misses uint64
}

// Stats returns current cache statistics.
func (c *Sharded[K, V]) Stats() Stats {
	return Stats{
		Len:    c.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
)

func TestNewSharded(t *testing.T) {
	c := NewSharded[string, int](8, StringHasher)
	if c == nil {
		t.Fatal("NewSharded returned nil")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}

	// Non-positive capacity falls back to the default.
	c = NewSharded[string, int](0, StringHasher)
	for i := 0; i < DefaultCapacity+1; i++ {
		c.Set("key"+strconv.Itoa(i), i)
	}
	if c.Len() == 0 {
		t.Error("cache with default capacity dropped everything")
	}
}

func TestShardedGetSet(t *testing.T) {
	c := NewSharded[string, int](10, StringHasher)

	c.Set("key1", 42)

	val, ok := c.Get("key1")
	if !ok {
		t.Error("expected key1 to exist")
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}

	_, ok = c.Get("nonexistent")
	if ok {
		t.Error("expected nonexistent key to not exist")
	}
}

func TestShardedOverwrite(t *testing.T) {
	c := NewSharded[string, int](10, StringHasher)

	c.Set("key1", 1)
	c.Set("key1", 2)

	if val, _ := c.Get("key1"); val != 2 {
		t.Errorf("expected overwritten value 2, got %d", val)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after overwrite, got %d", c.Len())
	}
}

func TestShardedDelete(t *testing.T) {
	c := NewSharded[string, int](10, StringHasher)

	c.Set("key1", 42)

	if !c.Delete("key1") {
		t.Error("expected Delete to return true for existing key")
	}
	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 to be deleted")
	}
	if c.Delete("nonexistent") {
		t.Error("expected Delete to return false for non-existing key")
	}
}

func TestShardedClear(t *testing.T) {
	c := NewSharded[string, int](10, StringHasher)

	c.Set("key1", 1)
	c.Set("key2", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d entries", c.Len())
	}
}

func TestShardedLRUEviction(t *testing.T) {
	// Capacity 2 per shard. Keys landing in the same shard evict in LRU
	// order; pin the shard by using one hasher value.
	sameShard := func(string) uint64 { return 0 }
	c := NewSharded[string, int](2, sameShard)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to exist")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to exist")
	}
}

func TestShardedStats(t *testing.T) {
	c := NewSharded[string, int](10, StringHasher)

	c.Set("key1", 1)
	c.Get("key1")
	c.Get("key1")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("hits = %d, want 2", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if stats.Len != 1 {
		t.Errorf("len = %d, want 1", stats.Len)
	}
}

func TestShardedConcurrent(t *testing.T) {
	c := NewSharded[string, int](64, StringHasher)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				c.Set(key, i)
				if val, ok := c.Get(key); !ok || val != i {
					t.Errorf("Get(%q) = (%d, %v), want (%d, true)", key, val, ok, i)
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestLRUList(t *testing.T) {
	l := &lruList[string, int]{}

	if _, ok := l.RemoveOldest(); ok {
		t.Error("RemoveOldest on empty list should return false")
	}

	l.PushFront("a", 1)
	l.PushFront("b", 2)
	l.PushFront("c", 3)
	if l.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", l.Len())
	}

	// Oldest is the first pushed.
	if key, ok := l.RemoveOldest(); !ok || key != "a" {
		t.Errorf("RemoveOldest() = (%q, %v), want (a, true)", key, ok)
	}

	// MoveToFront changes eviction order.
	b := l.head.next // "b" is now the tail
	l.MoveToFront(b)
	if key, _ := l.RemoveOldest(); key != "c" {
		t.Errorf("RemoveOldest after MoveToFront = %q, want c", key)
	}

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", l.Len())
	}
}

package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memItem struct {
	entry    *Entry
	storedAt time.Time
}

// memoryTier is the bounded, volatile front tier: LRU by entry count plus a
// TTL enforced by Cache.Sweep.
type memoryTier struct {
	lru *lru.Cache[string, memItem]
	ttl time.Duration
}

func newMemoryTier(size int, ttl time.Duration) (*memoryTier, error) {
	c, err := lru.New[string, memItem](size)
	if err != nil {
		return nil, err
	}
	return &memoryTier{lru: c, ttl: ttl}, nil
}

// get returns the entry if present and not past its TTL. Expired entries are
// removed on access.
func (m *memoryTier) get(key string, now time.Time) (*Entry, bool) {
	it, ok := m.lru.Get(key)
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && now.Sub(it.storedAt) > m.ttl {
		m.lru.Remove(key)
		return nil, false
	}
	return it.entry, true
}

func (m *memoryTier) peek(key string, now time.Time) (*Entry, bool) {
	it, ok := m.lru.Peek(key)
	if !ok || (m.ttl > 0 && now.Sub(it.storedAt) > m.ttl) {
		return nil, false
	}
	return it.entry, true
}

func (m *memoryTier) put(key string, e *Entry, now time.Time) {
	m.lru.Add(key, memItem{entry: e, storedAt: now})
}

func (m *memoryTier) remove(key string) {
	m.lru.Remove(key)
}

func (m *memoryTier) purge() int {
	n := m.lru.Len()
	m.lru.Purge()
	return n
}

func (m *memoryTier) sweep(now time.Time) int {
	if m.ttl <= 0 {
		return 0
	}
	removed := 0
	for _, k := range m.lru.Keys() {
		it, ok := m.lru.Peek(k)
		if ok && now.Sub(it.storedAt) > m.ttl {
			m.lru.Remove(k)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) size() int {
	return m.lru.Len()
}

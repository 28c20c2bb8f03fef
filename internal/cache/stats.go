package cache

import (
	"sync"
	"time"
)

// Statistics is a point-in-time snapshot of cache counters.
// TotalRequests == MemoryHits + R2Hits + Misses always holds for a snapshot.
type Statistics struct {
	MemoryHits    int64     `json:"memoryHits"`
	R2Hits        int64     `json:"r2Hits"`
	Misses        int64     `json:"misses"`
	TotalRequests int64     `json:"totalRequests"`
	MemorySize    int       `json:"memorySize"`
	LastCleanup   time.Time `json:"lastCleanup"`
}

// HitRate is the share of lookups answered by either tier, in [0, 1].
func (s Statistics) HitRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.MemoryHits+s.R2Hits) / float64(s.TotalRequests)
}

// Effectiveness labels the hit rate for dashboards.
func (s Statistics) Effectiveness() string {
	if s.TotalRequests == 0 {
		return "n/a"
	}
	switch r := s.HitRate(); {
	case r >= 0.8:
		return "excellent"
	case r >= 0.5:
		return "good"
	case r >= 0.2:
		return "fair"
	default:
		return "poor"
	}
}

// counters are guarded by one mutex so that a snapshot never observes a
// half-applied lookup.
type counters struct {
	mu          sync.Mutex
	memoryHits  int64
	r2Hits      int64
	misses      int64
	total       int64
	lastCleanup time.Time
}

func (c *counters) record(t Tier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch t {
	case TierMemory:
		c.memoryHits++
	case TierDurable:
		c.r2Hits++
	default:
		c.misses++
	}
	c.total++
}

func (c *counters) markCleanup(at time.Time) {
	c.mu.Lock()
	c.lastCleanup = at
	c.mu.Unlock()
}

func (c *counters) reset() {
	c.mu.Lock()
	c.memoryHits, c.r2Hits, c.misses, c.total = 0, 0, 0, 0
	c.mu.Unlock()
}

func (c *counters) snapshot(memorySize int) Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Statistics{
		MemoryHits:    c.memoryHits,
		R2Hits:        c.r2Hits,
		Misses:        c.misses,
		TotalRequests: c.total,
		MemorySize:    memorySize,
		LastCleanup:   c.lastCleanup,
	}
}

// Package cache implements the two-tier report cache: a bounded in-process
// memory tier in front of a durable object-storage tier.
package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/raysh454/a11yscan/internal/logging"
	"github.com/raysh454/a11yscan/internal/model"
)

const lockStripes = 64

// Config controls the memory tier.
type Config struct {
	// MemoryEntries bounds the memory tier; least-recently-used entries are evicted.
	MemoryEntries int `yaml:"memory_entries"`

	// MemoryTTL is how long an entry may stay in memory before a sweep drops it.
	MemoryTTL time.Duration `yaml:"memory_ttl"`

	// SweepInterval is how often Run sweeps the memory tier.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func DefaultConfig() Config {
	return Config{
		MemoryEntries: 512,
		MemoryTTL:     24 * time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

// ResultCache maps normalized URLs to report payloads.
//
// Writes go to the durable tier first and then to memory, under a per-key lock,
// so the memory tier never holds a payload the durable tier does not.
type ResultCache struct {
	cfg     Config
	mem     *memoryTier
	durable DurableTier
	stats   counters
	locks   [lockStripes]sync.Mutex
	logger  logging.Logger
	now     func() time.Time
}

// New builds a ResultCache. durable may be nil for a memory-only cache.
func New(cfg Config, durable DurableTier, logger logging.Logger) (*ResultCache, error) {
	def := DefaultConfig()
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = def.MemoryEntries
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	mem, err := newMemoryTier(cfg.MemoryEntries, cfg.MemoryTTL)
	if err != nil {
		return nil, fmt.Errorf("new memory tier: %w", err)
	}

	return &ResultCache{
		cfg:     cfg,
		mem:     mem,
		durable: durable,
		logger:  logger.With(logging.Field{Key: "component", Value: "result-cache"}),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *ResultCache) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.locks[h.Sum32()%lockStripes]
}

// Lookup checks memory, then the durable tier. A durable hit is promoted into
// memory. Every call counts exactly one of memory hit, durable hit or miss.
//
// A durable failure after a memory miss is counted as a miss and returned
// wrapped in ErrTierUnavailable.
func (c *ResultCache) Lookup(ctx context.Context, key string, window *FreshnessWindow) (*Entry, Tier, error) {
	now := c.now()

	if e, ok := c.mem.get(key, now); ok && window.Accepts(e) {
		c.stats.record(TierMemory)
		return e, TierMemory, nil
	}

	if c.durable == nil {
		c.stats.record(TierNone)
		return nil, TierNone, ErrNotFound
	}

	e, err := c.durable.Get(ctx, key)
	if err != nil {
		c.stats.record(TierNone)
		if errors.Is(err, ErrNotFound) {
			return nil, TierNone, ErrNotFound
		}
		c.logger.Warn("durable tier lookup failed",
			logging.Field{Key: "key", Value: key}, logging.Err(err))
		return nil, TierNone, fmt.Errorf("%w: %v", ErrTierUnavailable, err)
	}
	if !window.Accepts(e) {
		c.stats.record(TierNone)
		return nil, TierNone, ErrNotFound
	}

	c.promote(key, e)
	c.stats.record(TierDurable)
	return e, TierDurable, nil
}

// Peek returns the memory-tier entry for key without counting a request.
// It is meant for reads that follow a counted Lookup, such as resolving a
// cached job id, and never consults the durable tier.
func (c *ResultCache) Peek(key string) (*Entry, bool) {
	return c.mem.peek(key, c.now())
}

// promote copies a durable entry into memory unless a Store raced ahead of us,
// in which case memory already holds something at least as new.
func (c *ResultCache) promote(key string, e *Entry) {
	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()
	if cur, ok := c.mem.peek(key, c.now()); ok && !cur.UpdatedAt.Before(e.UpdatedAt) {
		return
	}
	c.mem.put(key, e, c.now())
}

// Store writes payload to the durable tier, then to memory. If the durable
// write fails, memory drops any copy of key and the error is wrapped in
// ErrTierUnavailable.
func (c *ResultCache) Store(ctx context.Context, key string, payload *model.ReportResult) error {
	if key == "" {
		return errors.New("cache: empty key")
	}
	if payload == nil {
		return errors.New("cache: nil payload")
	}

	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	now := c.now()
	e := &Entry{Key: key, Payload: payload, CreatedAt: now, UpdatedAt: now}
	if prev, ok := c.mem.peek(key, now); ok {
		e.CreatedAt = prev.CreatedAt
	}

	if c.durable != nil {
		if err := c.durable.Put(ctx, key, e); err != nil {
			c.mem.remove(key)
			c.logger.Warn("durable tier write failed",
				logging.Field{Key: "key", Value: key}, logging.Err(err))
			return fmt.Errorf("%w: %v", ErrTierUnavailable, err)
		}
	}
	c.mem.put(key, e, now)

	c.logger.Debug("stored entry", logging.Field{Key: "key", Value: key})
	return nil
}

// ClearMemory empties the memory tier only and returns how many entries were dropped.
func (c *ResultCache) ClearMemory() int {
	n := c.mem.purge()
	c.logger.Info("memory tier cleared", logging.Field{Key: "removed", Value: n})
	return n
}

// ResetStatistics zeroes all counters without touching cached data.
func (c *ResultCache) ResetStatistics() {
	c.stats.reset()
}

func (c *ResultCache) Statistics() Statistics {
	return c.stats.snapshot(c.mem.size())
}

// Sweep drops memory entries past MemoryTTL and records the cleanup time.
func (c *ResultCache) Sweep() int {
	now := c.now()
	n := c.mem.sweep(now)
	c.stats.markCleanup(now)
	if n > 0 {
		c.logger.Debug("swept memory tier", logging.Field{Key: "removed", Value: n})
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (c *ResultCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

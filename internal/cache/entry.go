package cache

import (
	"context"
	"errors"
	"time"

	"github.com/raysh454/a11yscan/internal/model"
)

var (
	// ErrNotFound is returned when no tier holds an acceptable entry.
	ErrNotFound = errors.New("not found in cache")

	// ErrTierUnavailable wraps I/O failures of the durable tier. Callers may retry.
	ErrTierUnavailable = errors.New("cache tier unavailable")
)

// Tier identifies which level answered a lookup.
type Tier string

const (
	TierNone    Tier = ""
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
)

// Entry is one cached report keyed by normalized URL.
type Entry struct {
	Key       string              `json:"key"`
	Payload   *model.ReportResult `json:"payload"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// FreshnessWindow narrows which entries are acceptable. Nil bounds are ignored.
type FreshnessWindow struct {
	CreatedAfter *time.Time
	UpdatedAfter *time.Time
}

// Accepts reports whether e falls inside the window. A nil window accepts everything.
func (w *FreshnessWindow) Accepts(e *Entry) bool {
	if e == nil {
		return false
	}
	if w == nil {
		return true
	}
	if w.CreatedAfter != nil && e.CreatedAt.Before(*w.CreatedAfter) {
		return false
	}
	if w.UpdatedAfter != nil && e.UpdatedAt.Before(*w.UpdatedAfter) {
		return false
	}
	return true
}

// DurableTier is the slow, effectively unbounded level (object storage).
// Get must return ErrNotFound (possibly wrapped) for missing keys.
type DurableTier interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, e *Entry) error
	Delete(ctx context.Context, key string) error
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. Values are stored encoded so callers never
// share mutable state with the cache.
type Memory struct {
	ttl     time.Duration
	entries *xsync.Map[string, entry]
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		entries: xsync.NewMap[string, entry](),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests to step over the TTL.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string, dst any) (bool, error) {
	e, ok := m.entries.Load(key)
	if !ok {
		return false, nil
	}
	if !m.now().Before(e.expiresAt) {
		// Lazy expiry: drop the slot only if nobody refreshed it meanwhile.
		m.entries.Compute(key, func(old entry, loaded bool) (entry, xsync.ComputeOp) {
			if loaded && !m.now().Before(old.expiresAt) {
				return old, xsync.DeleteOp
			}
			return old, xsync.CancelOp
		})
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	m.entries.Store(key, entry{data: data, expiresAt: m.now().Add(m.ttl)})
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// Len reports the number of slots, including expired ones not yet collected.
func (m *Memory) Len() int {
	return m.entries.Size()
}

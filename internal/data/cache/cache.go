// Package cache provides the read-through item cache used by the
// repositories. Writes invalidate synchronously before the mutating
// call returns; a cache failure is treated as a miss, never an error.
package cache

import (
	"context"
	"sync"
	"time"
)

type ItemCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Invalidate(ctx context.Context, keys ...string)
}

type memEntry struct {
	value   []byte
	expires time.Time
}

// Memory is the in-process cache used in tests and when no Redis
// address is configured.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memEntry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]memEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte) {
	var expires time.Time
	if m.ttl > 0 {
		expires = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = memEntry{value: value, expires: expires}
	m.mu.Unlock()
}

func (m *Memory) Invalidate(_ context.Context, keys ...string) {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// Nop disables caching entirely.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte)        {}
func (Nop) Invalidate(context.Context, ...string)      {}

package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	payload  []byte
	deadline time.Time
}

// Memory is a bounded in-process store. Capacity is enforced by an LRU;
// freshness by a per-entry deadline checked on read, so expired entries
// linger only until read or evicted.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemory creates a memory store holding at most maxEntries payloads.
func NewMemory(maxEntries int) (*Memory, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	entries, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Memory{entries: entries, now: time.Now}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if m.now().After(entry.deadline) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	return entry.payload, true, nil
}

func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.entries.Add(key, memoryEntry{payload: payload, deadline: m.now().Add(ttl)})
	return nil
}

func (m *Memory) Close() error {
	m.entries.Purge()
	return nil
}

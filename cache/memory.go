package cache

import (
	"context"
	"sync"

	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/wire"
)

// Compile-time interface check.
var _ ResultCache = (*Memory)(nil)

// Memory is a latest-value-only in-memory cache for unit tests. It keeps
// the append-only contract's observable behavior: Store never fails and a
// later Store for the same hash shadows the earlier entry.
type Memory struct {
	mu      sync.RWMutex
	entries map[job.Hash]*wire.Message
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[job.Hash]*wire.Message)}
}

// Lookup returns the most recent entry for the hash, or nil.
func (m *Memory) Lookup(_ context.Context, h job.Hash) (*wire.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.entries[h], nil
}

// Store records the entry as the latest for the hash.
func (m *Memory) Store(_ context.Context, h job.Hash, msg *wire.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[h] = msg

	return nil
}

// Package memory provides a fully in-memory feed. Safe for concurrent
// access. Intended for unit testing and single-process development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/feed"
)

// Compile-time interface check.
var _ feed.Feed = (*Feed)(nil)

// Feed is an in-memory append-only log keyed by subfeed name.
type Feed struct {
	mu       sync.RWMutex
	subfeeds map[string][][]byte
}

// New returns a new empty Feed.
func New() *Feed {
	return &Feed{subfeeds: make(map[string][][]byte)}
}

// Append atomically appends a copy of msg to the subfeed.
func (f *Feed) Append(_ context.Context, subfeed string, msg []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := make([]byte, len(msg))
	copy(cp, msg)
	f.subfeeds[subfeed] = append(f.subfeeds[subfeed], cp)

	return len(f.subfeeds[subfeed]) - 1, nil
}

// Len returns the number of messages in the subfeed.
func (f *Feed) Len(_ context.Context, subfeed string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.subfeeds[subfeed]), nil
}

// At returns a copy of the message at the given index.
func (f *Feed) At(_ context.Context, subfeed string, index int) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	msgs := f.subfeeds[subfeed]
	if index < 0 || index >= len(msgs) {
		return nil, fmt.Errorf("%w: %s[%d]", tether.ErrNoSuchMessage, subfeed, index)
	}

	cp := make([]byte, len(msgs[index]))
	copy(cp, msgs[index])

	return cp, nil
}

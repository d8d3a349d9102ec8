// Package cache provides content-addressed lookup of completed job
// results. Entries are keyed by job hash and stored as the exact
// JOB_FINISHED wire message, so a cache hit can be replayed to a new
// submitter with only the job id rewritten.
//
// The canonical implementation layers on an append-only feed: one subfeed
// per hash, appends only, most recent entry authoritative. Lookups are
// point reads of the last message; same-process reads observe writes
// immediately (read-your-writes).
package cache

import (
	"context"
	"fmt"

	"github.com/loomworks/tether/feed"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/wire"
)

// ResultCache is the narrow contract the coordination layer consumes.
// Implementations must never overwrite or delete entries.
type ResultCache interface {
	// Lookup returns the most recent entry for the hash, or nil if there
	// is none. An IO failure is returned as an error; callers degrade to
	// a cache miss.
	Lookup(ctx context.Context, h job.Hash) (*wire.Message, error)

	// Store appends an entry for the hash. Failures lose the cached
	// result but never the job's outcome; callers log and continue.
	Store(ctx context.Context, h job.Hash, m *wire.Message) error
}

// Compile-time interface check.
var _ ResultCache = (*FeedCache)(nil)

// FeedCache stores entries in hash-keyed subfeeds of an append-only feed.
type FeedCache struct {
	feed feed.Feed
}

// New creates a feed-backed result cache.
func New(f feed.Feed) *FeedCache {
	return &FeedCache{feed: f}
}

// Lookup reads the last message of the hash's subfeed.
func (c *FeedCache) Lookup(ctx context.Context, h job.Hash) (*wire.Message, error) {
	data, err := feed.Last(ctx, c.feed, feed.HashSubfeed(h.String()))
	if err != nil {
		return nil, fmt.Errorf("cache: lookup %s: %w", h, err)
	}
	if data == nil {
		return nil, nil
	}

	m, err := wire.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("cache: lookup %s: %w", h, err)
	}

	return m, nil
}

// Store appends the entry to the hash's subfeed.
func (c *FeedCache) Store(ctx context.Context, h job.Hash, m *wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("cache: store %s: %w", h, err)
	}

	if _, err := c.feed.Append(ctx, feed.HashSubfeed(h.String()), data); err != nil {
		return fmt.Errorf("cache: store %s: %w", h, err)
	}

	return nil
}

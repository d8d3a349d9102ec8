// Package feed defines the append-only message log abstraction the
// coordination layer runs on. A feed is a set of independent subfeeds,
// each an ordered, append-only sequence of opaque messages.
//
// Subfeeds are keyed either by a handler connection (job-handler
// communication) or by a content hash (the result cache). Appends are
// atomic; readers always observe a prefix of the true history, so multiple
// writers never need coordination beyond atomic append.
package feed

import "context"

// Feed is an append-only message log with named subfeeds.
type Feed interface {
	// Append atomically appends a message to the subfeed and returns its
	// index. Messages are never overwritten or deleted.
	Append(ctx context.Context, subfeed string, msg []byte) (int, error)

	// Len returns the number of messages currently in the subfeed.
	// A subfeed that has never been appended to has length zero.
	Len(ctx context.Context, subfeed string) (int, error)

	// At returns the message at the given index. Returns
	// tether.ErrNoSuchMessage if index is out of range.
	At(ctx context.Context, subfeed string, index int) ([]byte, error)
}

// Last is a point read of the most recent message in a subfeed, or nil if
// the subfeed is empty. The cache uses this: only the most recently
// appended entry for a hash is authoritative.
func Last(ctx context.Context, f Feed, subfeed string) ([]byte, error) {
	n, err := f.Len(ctx, subfeed)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	return f.At(ctx, subfeed, n-1)
}

// ──────────────────────────────────────────────────
// Subfeed naming
// ──────────────────────────────────────────────────

// Subfeed names follow a pattern:
//
//	handlers              — remote handler announcements (registry)
//	handler:<id>:in       — messages from a remote handler
//	handler:<id>:out      — events to a remote handler
//	hash:<hex>            — cached results for a content hash

// RegistrySubfeed is where remote handlers announce themselves.
const RegistrySubfeed = "handlers"

// InboundSubfeed returns the subfeed a remote handler writes requests to.
func InboundSubfeed(handlerID string) string { return "handler:" + handlerID + ":in" }

// OutboundSubfeed returns the subfeed a connection writes events to.
func OutboundSubfeed(handlerID string) string { return "handler:" + handlerID + ":out" }

// HashSubfeed returns the cache subfeed for a content hash.
func HashSubfeed(hash string) string { return "hash:" + hash }

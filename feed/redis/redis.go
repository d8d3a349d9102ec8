// Package redis implements feed.Feed on Redis lists. Each subfeed is one
// list; RPUSH gives atomic append, LINDEX gives point reads, so the
// append-only contract holds without any coordination between writers.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	f := redisfeed.New(client)
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/feed"
)

// Compile-time interface check.
var _ feed.Feed = (*Feed)(nil)

// keyPrefix namespaces all subfeed lists: tether:feed:{subfeed}
const keyPrefix = "tether:feed:"

// subfeedKey returns the list key for a subfeed.
func subfeedKey(subfeed string) string { return keyPrefix + subfeed }

// Feed implements feed.Feed backed by Redis lists.
type Feed struct {
	client goredis.Cmdable
}

// New creates a Redis-backed feed. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable) *Feed {
	return &Feed{client: client}
}

// Ping verifies the Redis connection is alive.
func (f *Feed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Append appends the message to the subfeed's list.
func (f *Feed) Append(ctx context.Context, subfeed string, msg []byte) (int, error) {
	length, err := f.client.RPush(ctx, subfeedKey(subfeed), msg).Result()
	if err != nil {
		return 0, fmt.Errorf("tether/redis: append %s: %w", subfeed, err)
	}

	return int(length) - 1, nil
}

// Len returns the subfeed's list length.
func (f *Feed) Len(ctx context.Context, subfeed string) (int, error) {
	n, err := f.client.LLen(ctx, subfeedKey(subfeed)).Result()
	if err != nil {
		return 0, fmt.Errorf("tether/redis: len %s: %w", subfeed, err)
	}

	return int(n), nil
}

// At returns the message at the given index.
func (f *Feed) At(ctx context.Context, subfeed string, index int) ([]byte, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %s[%d]", tether.ErrNoSuchMessage, subfeed, index)
	}

	data, err := f.client.LIndex(ctx, subfeedKey(subfeed), int64(index)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: %s[%d]", tether.ErrNoSuchMessage, subfeed, index)
		}

		return nil, fmt.Errorf("tether/redis: at %s[%d]: %w", subfeed, index, err)
	}

	return data, nil
}

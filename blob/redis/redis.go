// Package redis implements blob.Store on Redis string values. Suitable for
// deployments already running Redis for the feed; blobs are keyed by their
// content digest so re-storing the same object is a no-op.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/blob"
)

// Compile-time interface check.
var _ blob.Store = (*Store)(nil)

// keyPrefix namespaces all blob keys: tether:blob:{digest}
const keyPrefix = "tether:blob:"

// Store implements blob.Store backed by Redis.
type Store struct {
	client goredis.Cmdable
}

// New creates a Redis-backed blob store. The caller owns the Redis client
// lifecycle.
func New(client goredis.Cmdable) *Store {
	return &Store{client: client}
}

// Put stores the object under its content digest.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	uri := blob.URIFor(data)

	digest, err := blob.ParseURI(uri)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, keyPrefix+digest, data, 0).Err(); err != nil {
		return "", fmt.Errorf("tether/redis: put blob: %w", err)
	}

	return uri, nil
}

// Get retrieves the object stored under uri.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	digest, err := blob.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, keyPrefix+digest).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: %s", tether.ErrBlobNotFound, uri)
		}

		return nil, fmt.Errorf("tether/redis: get blob: %w", err)
	}

	return data, nil
}

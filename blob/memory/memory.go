// Package memory provides an in-memory blob store for unit testing and
// single-process development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/blob"
)

// Compile-time interface check.
var _ blob.Store = (*Store)(nil)

// Store holds blobs in a map keyed by URI.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New returns an empty in-memory blob store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under its content-addressed URI.
func (s *Store) Put(_ context.Context, data []byte) (string, error) {
	uri := blob.URIFor(data)

	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.blobs[uri] = cp
	s.mu.Unlock()

	return uri, nil
}

// Get returns a copy of the blob stored under uri.
func (s *Store) Get(_ context.Context, uri string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[uri]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", tether.ErrBlobNotFound, uri)
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	return cp, nil
}

// Package blob defines out-of-band storage for job results too large to
// embed in a JOB_FINISHED message. Objects are content-addressed: the URI
// is derived from the SHA-256 of the payload, so storing the same bytes
// twice is idempotent and a URI can be validated against its content.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Scheme is the URI scheme for content-addressed blobs.
const Scheme = "sha256"

// Store persists opaque objects and retrieves them by URI.
type Store interface {
	// Put stores the object and returns its content-addressed URI.
	Put(ctx context.Context, data []byte) (string, error)

	// Get retrieves the object for a URI. Returns tether.ErrBlobNotFound
	// if no object is stored under it.
	Get(ctx context.Context, uri string) ([]byte, error)
}

// URIFor computes the content-addressed URI for a payload.
func URIFor(data []byte) string {
	sum := sha256.Sum256(data)

	return Scheme + "://" + hex.EncodeToString(sum[:])
}

// ParseURI extracts the hex digest from a blob URI.
func ParseURI(uri string) (string, error) {
	digest, ok := strings.CutPrefix(uri, Scheme+"://")
	if !ok || digest == "" {
		return "", fmt.Errorf("blob: malformed uri %q", uri)
	}

	return digest, nil
}

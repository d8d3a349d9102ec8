package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/blob"
)

func TestPutGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	uri, err := s.Put(ctx, []byte("payload"))
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if !strings.HasPrefix(uri, "sha256://") {
		t.Errorf("unexpected uri scheme: %q", uri)
	}

	data, err := s.Get(ctx, uri)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected %q, got %q", "payload", data)
	}
}

func TestPut_Idempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Put(ctx, []byte("same"))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("content-addressed Put must return stable URIs: %q vs %q", first, second)
	}
}

func TestGet_Missing(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), blob.URIFor([]byte("never stored")))
	if !errors.Is(err, tether.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestParseURI(t *testing.T) {
	digest, err := blob.ParseURI("sha256://abc123")
	if err != nil || digest != "abc123" {
		t.Fatalf("expected digest abc123, got %q (err=%v)", digest, err)
	}

	for _, bad := range []string{"", "sha256://", "http://example.com", "abc123"} {
		if _, err := blob.ParseURI(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

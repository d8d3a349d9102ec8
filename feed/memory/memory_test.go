package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/feed"
)

func TestAppendLenAt(t *testing.T) {
	f := New()
	ctx := context.Background()

	idx, err := f.Append(ctx, "sf", []byte("one"))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if idx != 0 {
		t.Errorf("expected index 0, got %d", idx)
	}

	idx, err = f.Append(ctx, "sf", []byte("two"))
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if idx != 1 {
		t.Errorf("expected index 1, got %d", idx)
	}

	n, err := f.Len(ctx, "sf")
	if err != nil || n != 2 {
		t.Fatalf("expected len 2, got %d (err=%v)", n, err)
	}

	msg, err := f.At(ctx, "sf", 1)
	if err != nil || string(msg) != "two" {
		t.Fatalf("expected %q, got %q (err=%v)", "two", msg, err)
	}
}

func TestSubfeedsIndependent(t *testing.T) {
	f := New()
	ctx := context.Background()

	if _, err := f.Append(ctx, "a", []byte("x")); err != nil {
		t.Fatal(err)
	}

	n, err := f.Len(ctx, "b")
	if err != nil || n != 0 {
		t.Fatalf("expected empty subfeed b, got %d (err=%v)", n, err)
	}
}

func TestAt_OutOfRange(t *testing.T) {
	f := New()
	ctx := context.Background()

	if _, err := f.At(ctx, "sf", 0); !errors.Is(err, tether.ErrNoSuchMessage) {
		t.Fatalf("expected ErrNoSuchMessage, got %v", err)
	}

	if _, err := f.Append(ctx, "sf", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.At(ctx, "sf", -1); !errors.Is(err, tether.ErrNoSuchMessage) {
		t.Fatalf("expected ErrNoSuchMessage for negative index, got %v", err)
	}
}

func TestAppend_CopiesMessage(t *testing.T) {
	f := New()
	ctx := context.Background()

	msg := []byte("original")
	if _, err := f.Append(ctx, "sf", msg); err != nil {
		t.Fatal(err)
	}
	msg[0] = 'X'

	got, err := f.At(ctx, "sf", 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Error("feed stored a reference to the caller's buffer")
	}
}

func TestLast(t *testing.T) {
	f := New()
	ctx := context.Background()

	msg, err := feed.Last(ctx, f, "sf")
	if err != nil || msg != nil {
		t.Fatalf("expected nil for empty subfeed, got %q (err=%v)", msg, err)
	}

	for _, m := range []string{"a", "b", "c"} {
		if _, err := f.Append(ctx, "sf", []byte(m)); err != nil {
			t.Fatal(err)
		}
	}

	msg, err = feed.Last(ctx, f, "sf")
	if err != nil || string(msg) != "c" {
		t.Fatalf("expected last message %q, got %q (err=%v)", "c", msg, err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	f := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if _, err := f.Append(ctx, "sf", []byte("m")); err != nil {
					t.Error(err)

					return
				}
			}
		}()
	}
	wg.Wait()

	n, err := f.Len(ctx, "sf")
	if err != nil || n != 1000 {
		t.Fatalf("expected 1000 messages, got %d (err=%v)", n, err)
	}
}

package job

import (
	"context"
	"errors"
	"testing"
)

type addArgs struct {
	A int `msgpack:"a"`
	B int `msgpack:"b"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	RegisterDefinition(r, NewDefinition("add", "1",
		func(_ context.Context, args addArgs) (int, error) {
			return args.A + args.B, nil
		},
	))

	if _, ok := r.Get("add", "1"); !ok {
		t.Fatal("expected registered function to be found")
	}
	if _, ok := r.Get("add", "2"); ok {
		t.Fatal("version must be part of the registry key")
	}
	if _, ok := r.Get("sub", "1"); ok {
		t.Fatal("unregistered name must not be found")
	}
}

func TestRegistry_TypedRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	RegisterDefinition(r, NewDefinition("add", "1",
		func(_ context.Context, args addArgs) (int, error) {
			return args.A + args.B, nil
		},
	))

	args, err := r.Codec().Marshal(addArgs{A: 2, B: 3})
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}

	fn, _ := r.Get("add", "1")
	encoded, err := fn(context.Background(), args)
	if err != nil {
		t.Fatalf("function failed: %v", err)
	}

	var sum int
	if err := r.Codec().Unmarshal(encoded, &sum); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if sum != 5 {
		t.Errorf("expected 5, got %d", sum)
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := NewRegistry(nil)
	RegisterDefinition(r, NewDefinition("fail", "1",
		func(_ context.Context, _ struct{}) (int, error) {
			return 0, errors.New("bad")
		},
	))

	fn, _ := r.Get("fail", "1")
	if _, err := fn(context.Background(), nil); err == nil || err.Error() != "bad" {
		t.Fatalf("expected handler error to pass through, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry(nil)
	RegisterDefinition(r, NewDefinition("a", "1", func(_ context.Context, _ struct{}) (int, error) { return 0, nil }))
	RegisterDefinition(r, NewDefinition("b", "2", func(_ context.Context, _ struct{}) (int, error) { return 0, nil }))

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}

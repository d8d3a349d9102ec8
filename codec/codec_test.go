package codec

import (
	"bytes"
	"testing"
)

type payload struct {
	A int    `msgpack:"a" json:"a"`
	B string `msgpack:"b" json:"b"`
}

func TestMsgpackRoundTrip(t *testing.T) {
	c := Msgpack{}

	data, err := c.Marshal(payload{A: 7, B: "seven"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var got payload
	if err := c.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.A != 7 || got.B != "seven" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestMsgpackDeterministic(t *testing.T) {
	// Job hashes are computed over encoded argument bytes, so encoding the
	// same value twice must produce identical bytes.
	c := Msgpack{}

	first, err := c.Marshal(payload{A: 1, B: "x"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	second, err := c.Marshal(payload{A: 1, B: "x"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("expected identical bytes for identical values")
	}
}

func TestGet(t *testing.T) {
	if Get("msgpack").Name() != NameMsgpack {
		t.Error("expected msgpack codec")
	}
	if Get("json").Name() != NameJSON {
		t.Error("expected json codec")
	}
	if Get("").Name() != NameMsgpack {
		t.Error("expected msgpack default for empty name")
	}
	if Get("protobuf").Name() != NameMsgpack {
		t.Error("expected msgpack fallback for unknown name")
	}
}

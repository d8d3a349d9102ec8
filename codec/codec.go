// Package codec defines the serialization contract for job arguments and
// results. The bytes a codec produces are treated as opaque by the rest of
// the system; they flow through feeds, the cache, and the blob store
// unchanged, and the same codec must be used on both ends of a connection
// because job hashes are computed over the encoded bytes.
package codec

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes job argument and result values.
type Codec interface {
	// Marshal serializes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes bytes into the value pointed to by v.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier (e.g., "msgpack", "json").
	Name() string
}

// Name constants for codec selection.
const (
	NameMsgpack = "msgpack"
	NameJSON    = "json"
)

// Get returns a codec by name. Defaults to msgpack.
func Get(name string) Codec {
	switch name {
	case NameJSON:
		return JSON{}
	case NameMsgpack, "":
		return Msgpack{}
	default:
		return Msgpack{}
	}
}

// Default returns the default codec (msgpack).
func Default() Codec { return Msgpack{} }

// Msgpack encodes values as MessagePack. Deterministic for struct and
// scalar values, compact for binary payloads.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (Msgpack) Name() string { return NameMsgpack }

// JSON encodes values as JSON. Useful when the remote side is not a Go
// process.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSON) Name() string { return NameJSON }

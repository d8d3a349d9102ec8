package job

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Hash is the content address of a job: a hex-encoded SHA-256 digest of the
// function name, function version, and encoded arguments. Two jobs with
// equal hashes are the same computation, so results keyed by Hash can be
// shared across submitters.
type Hash string

// ComputeHash derives the content hash for a job. Each component is framed
// with its length before hashing, so the digest is order-sensitive and free
// of boundary collisions ("ab","c" never hashes like "a","bc").
func ComputeHash(name, version string, args []byte) Hash {
	h := sha256.New()

	for _, part := range [][]byte{[]byte(name), []byte(version), args} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write(part)
	}

	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// String returns the hex digest.
func (h Hash) String() string { return string(h) }

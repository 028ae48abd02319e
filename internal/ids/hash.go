package ids

import (
	"encoding/hex"

	"github.com/opencontainers/go-digest"
)

// ContentHash is a 32-byte SHA-256 value. Its string form is the
// lowercase hex of the bytes, exactly 64 characters.
type ContentHash [32]byte

// HashContent computes the content hash of a byte slice.
func HashContent(b []byte) ContentHash {
	d := digest.FromBytes(b)
	raw, _ := hex.DecodeString(d.Encoded())
	var h ContentHash
	copy(h[:], raw)
	return h
}

// String renders the hash as 64 lowercase hex characters, using the same
// digest.SHA256 formatting the rest of the engine relies on.
func (h ContentHash) String() string {
	return digest.NewDigestFromEncoded(digest.SHA256, hex.EncodeToString(h[:])).Encoded()
}

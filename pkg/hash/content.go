package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Content returns the hex-encoded BLAKE2b-256 digest of a note's plain text.
// Version rows store it so dedup can compare digests instead of bodies.
func Content(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether text hashes to digest. An empty digest never matches.
func Equal(digest, text string) bool {
	if digest == "" {
		return false
	}
	return digest == Content(text)
}

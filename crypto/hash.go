// Package crypto provides the signing, hashing and address primitives used
// throughout the chain: secp256k1 ECDSA signatures with deterministic
// nonces (RFC 6979) over SHA3-256 digests.
package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Hash returns the SHA3-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA3-256 digest of data.
func HashBytes(data []byte) []byte {
	h := sha3.Sum256(data)
	return h[:]
}

// HashConcat hashes the concatenation of parts without building an
// intermediate joined slice, used for delegation keys (hash(from||to)).
func HashConcat(parts ...[]byte) string {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

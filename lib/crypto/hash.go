package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

const (
	HashSize = sha256.Size
)

// Hasher() returns the global hashing algorithm used
func Hasher() hash.Hash { return sha256.New() }

// Hash() executes the global hashing algorithm on input bytes
func Hash(msg []byte) []byte {
	h := sha256.Sum256(msg)
	return h[:]
}

// ShortHash() executes the global hashing algorithm on input bytes
// and truncates the output to 20 bytes
func ShortHash(msg []byte) []byte {
	h := sha256.Sum256(msg)
	return h[:AddressSize]
}

// HashString() returns the hex string version of a hash
func HashString(msg []byte) string { return hex.EncodeToString(Hash(msg)) }

// ShortHashString() returns the hex string version of a short hash
func ShortHashString(msg []byte) string { return hex.EncodeToString(ShortHash(msg)) }

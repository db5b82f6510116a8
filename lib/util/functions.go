package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed, falling back to the current time if the
// system random source fails.
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// HashString generates a FNV-1a hash value for a string with a seed.
// Every node must use the same seed for the same purpose, otherwise the nodes
// disagree on key ownership.
func HashString(s string, seed uint64) uint64 {
	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// HashBytes is HashString for byte slices (cache names travel as bytes).
func HashBytes(b []byte, seed uint64) uint64 {
	hash := uint64(offset64) ^ seed
	for _, c := range b {
		hash ^= uint64(c)
		hash *= prime64
	}
	return hash
}

// Bucket maps a hash onto [0, n). n must be positive.
func Bucket(hash uint64, n int) int {
	// fold the high bits in, FNV has weak low bits for short keys
	hash ^= hash >> 32
	return int(hash % uint64(n))
}

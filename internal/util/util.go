// Package util provides content hashing helpers shared by the storage backends.
package util

import (
	"crypto/sha256"
	"encoding/hex"
)

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// ShortHash returns the first n characters of the content hash, for log fields.
func ShortHash(content string, n int) string {
	h := ContentHashString(content)
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}

package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the SHA-256 hex digest of content. This is the content
// identity used everywhere: reference entries, snapshot trees, and alert
// deduplication keys.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Package checksum provides content digests used for change detection and
// deduplication.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString is Sum for string content.
func SumString(s string) string {
	return Sum([]byte(s))
}

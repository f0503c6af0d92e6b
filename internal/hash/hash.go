// Package hash provides the content digest used for artifact integrity
// and idempotent storage keys.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the digest of data as "0x" followed by lowercase hex.
// The prefix matches the format recorded in the snapshot ledger.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return "0x" + hex.EncodeToString(sum[:])
}

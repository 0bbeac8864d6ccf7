package trace

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeTraceHash is the hex sha256 of a canonical trace encoding, or "" for
// empty input.
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}

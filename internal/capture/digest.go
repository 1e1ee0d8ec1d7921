package capture

import (
	"crypto/sha256"
	"encoding/hex"
)

// pngDigest returns the size and hex SHA-256 of a screenshot for the run journal.
func pngDigest(data []byte) (int, string) {
	if len(data) == 0 {
		return 0, ""
	}
	sum := sha256.Sum256(data)
	return len(data), hex.EncodeToString(sum[:])
}

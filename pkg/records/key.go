package records

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// contentHash derives a stable hex digest from a record's natural keys.
// Used when an upstream external identifier is missing.
func contentHash(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "_")))
	return hex.EncodeToString(h[:])
}

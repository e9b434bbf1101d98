package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EmailDigest returns a deterministic hex digest of a normalized email
// address. Envelopes of the same address never collide, so uniqueness
// constraints and exact-match lookups on encrypted email columns run against
// this digest instead. It is a lookup key, not a secrecy mechanism.
func EmailDigest(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashToken derives the storage key for a refresh token. Stores only ever
// see the digest, so a leaked store dump cannot be replayed as tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

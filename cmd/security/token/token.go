package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// FingerprintLen is the number of hex characters kept by Fingerprint.
const FingerprintLen = 12

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the first FingerprintLen hex chars of SHA-256(s).
// An empty input yields an empty fingerprint.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	return HashSHA256Hex(s)[:FingerprintLen]
}

// Equal compares two credentials in constant time.
// Inputs are hashed first so the comparison does not leak their lengths.
func Equal(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

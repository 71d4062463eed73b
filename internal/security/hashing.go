package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// IPHasher hashes client IP addresses with a fixed salt so raw addresses are
// never stored in session records, login history, or audit entries.
type IPHasher struct {
	salt string
}

// NewIPHasher returns an IPHasher using the given salt. An empty salt is
// allowed but makes hashes trivially precomputable; config supplies a default.
func NewIPHasher(salt string) *IPHasher {
	return &IPHasher{salt: salt}
}

// Hash returns the hex-encoded SHA-256 of salt||ip. Deterministic: the same
// address always produces the same hash, so equality checks on hashed values
// still detect address changes.
func (h *IPHasher) Hash(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(h.salt + ip))
	return hex.EncodeToString(sum[:])
}

// HashEqual compares a plaintext address against a stored hash in constant time.
func (h *IPHasher) HashEqual(ip, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(ip)), []byte(storedHash)) == 1
}

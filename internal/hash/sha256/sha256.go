// Package sha256 fingerprints normalized page content with SHA-256.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestLength is the length of a hex-encoded digest.
const DigestLength = sha256.Size * 2

// Hasher implements page.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a lowercase hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	return Fingerprint(data), nil
}

// Fingerprint returns the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintString hashes the UTF-8 bytes of content.
func FingerprintString(content string) string {
	return Fingerprint([]byte(content))
}

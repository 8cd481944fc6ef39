package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Entropy sizes (bytes before encoding) for the opaque artifacts this server
// mints. Authorization codes and MFA challenge tokens use 256 bits; refresh
// tokens use 512 bits so they stay comfortably beyond brute-force reach over
// their much longer lifetime.
const (
	CodeBytes      = 32
	ChallengeBytes = 32
	RefreshBytes   = 64
)

// RandomToken returns n bytes from crypto/rand encoded as unpadded base64url,
// suitable for use in URLs and form bodies without further escaping.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns the base64url-encoded SHA-256 digest of value.
//
// Opaque tokens are never stored verbatim; rows are keyed by fingerprint so a
// database leak does not hand out usable credentials, while lookups stay a
// single indexed equality match.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

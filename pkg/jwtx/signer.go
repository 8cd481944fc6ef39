package jwtx

import (
	"errors"
	"fmt"
	"strings"
)

// Supported signing algorithms.
const (
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrIssuer     = errors.New("jwtx: issuer mismatch")
)

// Signer produces and verifies the signed access-token representation.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
	Verify(token string) (Claims, error)
}

// NewSigner generates a fresh keypair for the named algorithm and returns a
// signer bound to the expected issuer. Keys are ephemeral: access tokens are
// short-lived and also validated against the token store, so a restart only
// invalidates tokens that were about to be re-checked anyway.
func NewSigner(algorithm, issuer string) (Signer, error) {
	switch strings.ToUpper(algorithm) {
	case strings.ToUpper(AlgorithmES256):
		return newES256Signer(issuer)
	case strings.ToUpper(AlgorithmEdDSA):
		return newEdDSASigner(issuer)
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", algorithm)
	}
}

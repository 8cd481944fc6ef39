package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. 64 MiB / 3 passes tracks the OWASP recommendation for
// interactive logins; bump memory before iterations if these ever change.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 3
	argonParallelism = 2
	argonSaltLength  = 16
	argonKeyLength   = 32
)

// ErrHashMismatch is returned by VerifySecret when the secret does not match.
var ErrHashMismatch = errors.New("cryptox: secret does not match hash")

// HashSecret derives a PHC-format Argon2id hash for a password or client
// secret. The salt and parameters are embedded in the returned string.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifySecret checks a plaintext secret against a PHC-format Argon2id hash
// produced by HashSecret. The comparison is constant-time; parameter values
// are taken from the hash so older rows keep verifying after a tuning change.
func VerifySecret(secret, encoded string) error {
	var (
		mem, iters uint32
		par        uint8
		b64Salt    string
		b64Key     string
	)

	n, err := fmt.Sscanf(encoded, "$argon2id$v=19$m=%d,t=%d,p=%d$%s", &mem, &iters, &par, &b64Salt)
	if err != nil || n != 4 {
		return errors.New("cryptox: malformed argon2id hash")
	}

	// Sscanf's %s is greedy; the salt and key are still joined by '$'.
	for i := range b64Salt {
		if b64Salt[i] == '$' {
			b64Key = b64Salt[i+1:]
			b64Salt = b64Salt[:i]
			break
		}
	}
	if b64Key == "" {
		return errors.New("cryptox: malformed argon2id hash")
	}

	salt, err := base64.RawStdEncoding.DecodeString(b64Salt)
	if err != nil {
		return errors.New("cryptox: malformed argon2id salt")
	}
	want, err := base64.RawStdEncoding.DecodeString(b64Key)
	if err != nil {
		return errors.New("cryptox: malformed argon2id key")
	}

	got := argon2.IDKey([]byte(secret), salt, iters, mem, par, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrHashMismatch
	}
	return nil
}

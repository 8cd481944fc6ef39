// Package totpx wraps the TOTP primitive used for step-up MFA: HMAC-SHA1,
// 30-second time step, 6 digits, with a ±1 step window for clock skew.
// Replay protection is not handled here; callers mark accepted codes in the
// ephemeral store.
package totpx

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Period is the TOTP time step. Anti-replay markers must outlive the skew
// window, so their TTL is 2×Period.
const Period = 30 * time.Second

var validateOpts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Key is a freshly generated TOTP enrollment: the base32 secret plus the
// otpauth:// URL the user scans.
type Key struct {
	Secret string
	URL    string
}

// GenerateKey mints a new TOTP secret for the given account.
func GenerateKey(issuer, account string) (Key, error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(Period / time.Second),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("totpx: generate key: %w", err)
	}
	return Key{Secret: k.Secret(), URL: k.URL()}, nil
}

// Validate reports whether code is correct for secret at time t, accepting
// the current step and one step either side.
func Validate(code, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, t, validateOpts)
	return err == nil && ok
}

// Code computes the expected passcode for secret at time t. Used by tests and
// by enrollment verification.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, validateOpts)
}

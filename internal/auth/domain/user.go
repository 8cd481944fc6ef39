package domain

import "time"

// User is an account that can authenticate with username and password,
// optionally hardened with TOTP.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Enabled      bool

	// Failed login tracking. LockedUntil is nil when the account is
	// not locked.
	FailedLogins int
	LockedUntil  *time.Time

	MFAEnabled bool
	// MFASecret holds the confirmed TOTP secret. MFAPendingSecret
	// holds a secret generated during setup that has not been
	// confirmed with a valid code yet.
	MFASecret        string
	MFAPendingSecret string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account is locked out at the given time.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

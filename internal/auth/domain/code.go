package domain

import "time"

// PKCE challenge methods.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// AuthorizationCode is a single-use grant minted by the authorize
// endpoint. Only the SHA-256 fingerprint of the code is stored; the
// plaintext leaves the server once, in the redirect.
type AuthorizationCode struct {
	ID       string
	CodeHash string
	ClientID string
	UserID   string

	RedirectURI string
	Scopes      []string

	CodeChallenge       string
	CodeChallengeMethod string

	// UsedAt is nil until the code is redeemed. Redemption is a
	// compare-and-set on this column so concurrent exchanges elect
	// exactly one winner.
	UsedAt    *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code is past its expiry at now.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// HasPKCE reports whether a code challenge was bound at issuance.
func (c AuthorizationCode) HasPKCE() bool {
	return c.CodeChallenge != ""
}

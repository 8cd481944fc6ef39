package domain

import "time"

// AccessToken is the stored record of an issued access token. The JWT
// itself is never persisted, only its SHA-256 fingerprint, so that
// introspection and revocation can find it without holding material
// that could be replayed.
type AccessToken struct {
	ID        string
	TokenHash string
	ClientID  string
	UserID    string
	Scopes    []string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the token is usable at now.
func (t AccessToken) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// RefreshToken is the stored record of an opaque refresh token.
// AccessTokenID links back to the access token issued alongside it so
// rotation can retire the old pair together. FamilyID ties every
// rotation descendant to the original grant; detecting reuse of a
// rotated-out token revokes the whole family.
type RefreshToken struct {
	ID            string
	TokenHash     string
	AccessTokenID string
	FamilyID      string
	ClientID      string
	UserID        string
	Scopes        []string
	Revoked       bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the token is usable at now.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// TokenPair is the token endpoint response body.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
	Scope            string `json:"scope,omitempty"`
}

// Introspection is the RFC 7662 response. Inactive tokens carry only
// Active=false; every other field stays at its zero value so nothing
// leaks about why the token is inactive.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

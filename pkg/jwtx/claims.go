// Package jwtx is the access-token signing collaborator: it turns claim sets
// into compact signed JWTs and verifies them again. Whether tokens are live is
// not its concern; revocation is answered by the token store.
package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims this server issues.
type Claims struct {
	jwt.RegisteredClaims

	// Scopes granted to this token, e.g. ["read", "write"].
	Scopes []string `json:"scope,omitempty"`

	// Username of the authenticated user, informational only.
	Username string `json:"username,omitempty"`
}

// NewAccessClaims builds the claim set for an access token: issuer, subject
// (user), audience (client), scope, iat and exp.
func NewAccessClaims(
	issuer, subject string,
	audience []string,
	scopes []string,
	username string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scopes:   scopes,
		Username: username,
	}
}

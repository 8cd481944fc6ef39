package domain

import "time"

// Grant types a client may be allowed to exercise.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantPassword          = "password"
)

// Client is an OAuth2 client registration. SecretHash is empty for
// public clients, which authenticate by client_id alone and must use
// PKCE on the authorization code flow.
type Client struct {
	ID           string
	Name         string
	SecretHash   string
	RedirectURIs []string
	Scopes       []string
	GrantTypes   []string
	Enabled      bool

	// Zero values fall back to the server-wide defaults.
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Public reports whether the client has no secret registered.
func (c Client) Public() bool {
	return c.SecretHash == ""
}

// AllowsGrant reports whether the registration permits the grant type.
func (c Client) AllowsGrant(grant string) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// AllowsRedirect reports whether uri exactly matches a registered
// redirect URI. No wildcard or prefix matching.
func (c Client) AllowsRedirect(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every requested scope is registered on
// the client.
func (c Client) AllowsScopes(requested []string) bool {
	for _, s := range requested {
		found := false
		for _, have := range c.Scopes {
			if have == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

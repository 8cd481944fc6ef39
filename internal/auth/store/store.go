package store

import (
	"context"
	"errors"

	"github.com/htvo/oauth2d/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Sub-repositories are exposed as methods so
// callers cannot accidentally nest transactions.
type Store interface {
	Users() Users
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	AccessTokens() AccessTokens
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back, otherwise it is committed. Use
	// it for multi-step operations that must be atomic (e.g. refresh
	// rotation).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped store. Its WithTx reuses the transaction
// rather than opening a nested one.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during the password grant and login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// RecordLoginFailure bumps failed_logins and, if lockedUntil is
	// non-nil, locks the account until that time.
	RecordLoginFailure(ctx context.Context, userID string, failures int, lockedUntil *int64) error

	// ResetLoginFailures clears failed_logins and any lockout after a
	// successful authentication.
	ResetLoginFailures(ctx context.Context, userID string) error

	// SetPendingMFASecret stages a TOTP secret during enrolment.
	SetPendingMFASecret(ctx context.Context, userID string, secret string) error

	// EnableMFA promotes the pending secret to the active one.
	EnableMFA(ctx context.Context, userID string) error

	// DisableMFA clears both the active and pending secrets.
	DisableMFA(ctx context.Context, userID string) error

	DeleteUser(ctx context.Context, userID string) error
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// CreateClient inserts a new client (secret_hash may be empty for
	// public clients).
	CreateClient(ctx context.Context, c domain.Client) error

	UpdateClientSecretHash(ctx context.Context, clientID, secretHash string) error

	DeleteClient(ctx context.Context, clientID string) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// GetAuthorizationCodeByHash fetches a code by its hashed value.
	GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error)

	// ConsumeAuthorizationCode marks the code used at usedAt, but only
	// if it has not been used already. Returns true when this caller
	// won the race, false when another redemption got there first.
	ConsumeAuthorizationCode(ctx context.Context, id string, usedAt int64) (bool, error)

	// DeleteExpiredAuthorizationCodes removes codes past their expiry.
	DeleteExpiredAuthorizationCodes(ctx context.Context, now int64) (int64, error)
}

type AccessTokens interface {
	CreateAccessToken(ctx context.Context, t domain.AccessToken) error

	GetAccessTokenByID(ctx context.Context, id string) (domain.AccessToken, error)

	// GetAccessTokenByHash fetches a token record by the SHA-256
	// fingerprint of the presented JWT.
	GetAccessTokenByHash(ctx context.Context, hash string) (domain.AccessToken, error)

	RevokeAccessToken(ctx context.Context, id string) error

	// RevokeAllUserAccessTokens bulk-revokes every live access token
	// for a user (admin revocation, password reset).
	RevokeAllUserAccessTokens(ctx context.Context, userID string) error

	// DeleteExpiredAccessTokens removes rows that are expired or
	// revoked, both terminal states.
	DeleteExpiredAccessTokens(ctx context.Context, now int64) (int64, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// GetRefreshTokenByAccessTokenID finds the refresh token paired
	// with an access token, for cascade revocation.
	GetRefreshTokenByAccessTokenID(ctx context.Context, accessTokenID string) (domain.RefreshToken, error)

	RevokeRefreshToken(ctx context.Context, id string) error

	// ConsumeRefreshToken revokes the token only if it is still live.
	// Returns true when this caller won the rotation, false when a
	// simultaneous rotation got there first.
	ConsumeRefreshToken(ctx context.Context, id string) (bool, error)

	// RevokeFamily revokes every token sharing the family id. Used
	// when a rotated-out token is replayed.
	RevokeFamily(ctx context.Context, familyID string) error

	// RevokeAllUserRefreshTokens bulk-revokes every refresh token for
	// a user.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string) error

	DeleteExpiredRefreshTokens(ctx context.Context, now int64) (int64, error)
}

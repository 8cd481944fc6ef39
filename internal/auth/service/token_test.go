package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/pkg/cryptox"
)

func issueTestPair(t *testing.T, env *testEnv) (pair struct {
	Access, Refresh string
}) {
	t.Helper()
	issued, err := env.Tokens.Issue(context.Background(), IssueParams{
		UserID:   env.User.ID,
		Username: env.User.Username,
		ClientID: env.Client.ID,
		Scopes:   []string{"read"},
	})
	require.NoError(t, err)
	pair.Access = issued.AccessToken
	pair.Refresh = issued.RefreshToken
	return pair
}

func TestIssueTokenPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pair, err := env.Tokens.Issue(ctx, IssueParams{
		UserID:   env.User.ID,
		Username: env.User.Username,
		ClientID: env.Client.ID,
		Scopes:   []string{"read", "write"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, int64(3600), pair.ExpiresIn)
	require.Equal(t, int64(86400), pair.RefreshExpiresIn)
	require.Equal(t, "read write", pair.Scope)

	claims, err := env.Tokens.Signer.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, env.User.ID, claims.Subject)
	require.Equal(t, []string{"read", "write"}, claims.Scopes)
	require.Equal(t, "alice", claims.Username)
}

func TestIssueWithoutRefresh(t *testing.T) {
	env := newTestEnv(t)

	pair, err := env.Tokens.Issue(context.Background(), IssueParams{
		ClientID:  env.Client.ID,
		Username:  env.Client.Name,
		Scopes:    []string{"read"},
		NoRefresh: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.Empty(t, pair.RefreshToken)
	require.Zero(t, pair.RefreshExpiresIn)
}

func TestRotateIssuesNewPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := issueTestPair(t, env)

	rotated, err := env.Tokens.Rotate(ctx, first.Refresh, env.Client.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, first.Refresh, rotated.RefreshToken)

	// The old access token is gone with its refresh token.
	_, err = env.Tokens.Validate(ctx, first.Access)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// The new pair is live.
	_, err = env.Tokens.Validate(ctx, rotated.AccessToken)
	require.NoError(t, err)
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := issueTestPair(t, env)

	rotated, err := env.Tokens.Rotate(ctx, first.Refresh, env.Client.ID)
	require.NoError(t, err)

	// Replaying the rotated-out token is invalid_grant.
	_, err = env.Tokens.Rotate(ctx, first.Refresh, env.Client.ID)
	require.ErrorIs(t, err, ErrInvalidGrant)

	// And it killed the descendant too.
	rt, err := env.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.Fingerprint(rotated.RefreshToken))
	require.NoError(t, err)
	require.True(t, rt.Revoked)

	_, err = env.Tokens.Rotate(ctx, rotated.RefreshToken, env.Client.ID)
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestRotateClientOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := issueTestPair(t, env)

	_, err := env.Tokens.Rotate(ctx, pair.Refresh, env.Public.ID)
	require.ErrorIs(t, err, ErrInvalidClient)

	// The failed attempt must not consume the token.
	_, err = env.Tokens.Rotate(ctx, pair.Refresh, env.Client.ID)
	require.NoError(t, err)
}

func TestRevokeCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("revoking access kills refresh", func(t *testing.T) {
		pair := issueTestPair(t, env)
		require.NoError(t, env.Tokens.Revoke(ctx, pair.Access))

		_, err := env.Tokens.Validate(ctx, pair.Access)
		require.ErrorIs(t, err, ErrTokenRevoked)
		_, err = env.Tokens.Rotate(ctx, pair.Refresh, env.Client.ID)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("revoking refresh kills access", func(t *testing.T) {
		pair := issueTestPair(t, env)
		require.NoError(t, env.Tokens.Revoke(ctx, pair.Refresh))

		_, err := env.Tokens.Validate(ctx, pair.Access)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("unknown token is a silent no-op", func(t *testing.T) {
		require.NoError(t, env.Tokens.Revoke(ctx, "never-issued"))
	})
}

func TestIntrospect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := issueTestPair(t, env)

	t.Run("active access token", func(t *testing.T) {
		info, err := env.Tokens.Introspect(ctx, pair.Access)
		require.NoError(t, err)
		require.True(t, info.Active)
		require.Equal(t, "read", info.Scope)
		require.Equal(t, env.Client.ID, info.ClientID)
		require.Equal(t, "alice", info.Username)
		require.Equal(t, env.User.ID, info.Sub)
		require.NotZero(t, info.Exp)
	})

	t.Run("active refresh token", func(t *testing.T) {
		info, err := env.Tokens.Introspect(ctx, pair.Refresh)
		require.NoError(t, err)
		require.True(t, info.Active)
		require.Equal(t, "refresh_token", info.TokenType)
	})

	t.Run("revoked token leaks nothing", func(t *testing.T) {
		require.NoError(t, env.Tokens.Revoke(ctx, pair.Access))
		info, err := env.Tokens.Introspect(ctx, pair.Access)
		require.NoError(t, err)
		require.False(t, info.Active)
		require.Empty(t, info.Scope)
		require.Empty(t, info.ClientID)
		require.Empty(t, info.Username)
		require.Zero(t, info.Exp)
	})

	t.Run("unknown token", func(t *testing.T) {
		info, err := env.Tokens.Introspect(ctx, "garbage")
		require.NoError(t, err)
		require.False(t, info.Active)
	})
}

func TestValidateDistinguishesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("malformed", func(t *testing.T) {
		_, err := env.Tokens.Validate(ctx, "not-a-jwt")
		require.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("revoked", func(t *testing.T) {
		pair := issueTestPair(t, env)
		require.NoError(t, env.Tokens.Revoke(ctx, pair.Access))
		_, err := env.Tokens.Validate(ctx, pair.Access)
		require.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("valid", func(t *testing.T) {
		pair := issueTestPair(t, env)
		at, err := env.Tokens.Validate(ctx, pair.Access)
		require.NoError(t, err)
		require.Equal(t, env.User.ID, at.UserID)
	})
}

func TestRevokeAllForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := issueTestPair(t, env)
	b := issueTestPair(t, env)

	require.NoError(t, env.Tokens.RevokeAllForUser(ctx, env.User.ID))

	for _, access := range []string{a.Access, b.Access} {
		_, err := env.Tokens.Validate(ctx, access)
		require.ErrorIs(t, err, ErrTokenRevoked)
	}
	for _, refresh := range []string{a.Refresh, b.Refresh} {
		_, err := env.Tokens.Rotate(ctx, refresh, env.Client.ID)
		require.ErrorIs(t, err, ErrInvalidGrant)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pair := issueTestPair(t, env)

	// Revoked rows are terminal and get swept.
	require.NoError(t, env.Tokens.Revoke(ctx, pair.Access))

	removed, err := env.Tokens.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	_, err = env.Store.AccessTokens().GetAccessTokenByHash(ctx, cryptox.Fingerprint(pair.Access))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPerClientTTLOverrides(t *testing.T) {
	env := newTestEnv(t)

	pair, err := env.Tokens.Issue(context.Background(), IssueParams{
		UserID:     env.User.ID,
		Username:   env.User.Username,
		ClientID:   env.Client.ID,
		Scopes:     []string{"read"},
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, int64(300), pair.ExpiresIn)
	require.Equal(t, int64(3600), pair.RefreshExpiresIn)
}

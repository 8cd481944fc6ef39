package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htvo/oauth2d/internal/auth/domain"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/idx"
)

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestIssueAndRedeemWithS256(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	verifier := "some-high-entropy-verifier-string-0123456789"

	code, expiresIn, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:            env.Client.ID,
		UserID:              env.User.ID,
		RedirectURI:         "https://app.test/cb",
		Scopes:              []string{"read"},
		CodeChallenge:       s256Challenge(verifier),
		CodeChallengeMethod: domain.PKCEMethodS256,
	})
	require.NoError(t, err)
	require.NotEmpty(t, code)
	require.Equal(t, DefaultCodeTTL, expiresIn)

	redeemed, err := env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", verifier)
	require.NoError(t, err)
	require.Equal(t, env.User.ID, redeemed.UserID)
	require.Equal(t, []string{"read"}, redeemed.Scopes)
	require.NotNil(t, redeemed.UsedAt)
}

func TestRedeemTwiceFailsSecondTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		Scopes:      []string{"read"},
	})
	require.NoError(t, err)

	_, err = env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "")
	require.NoError(t, err)

	_, err = env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "")
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestConcurrentRedemptionSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		Scopes:      []string{"read"},
	})
	require.NoError(t, err)

	// Assertions happen after the wait; require must not be called off
	// the test goroutine.
	const redeemers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else {
				errs = append(errs, err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, winners)
	require.Len(t, errs, redeemers-1)
	for _, err := range errs {
		require.ErrorIs(t, err, ErrInvalidGrant)
	}
}

func TestPKCEMismatchRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:            env.Client.ID,
		UserID:              env.User.ID,
		RedirectURI:         "https://app.test/cb",
		Scopes:              []string{"read"},
		CodeChallenge:       s256Challenge("the-right-verifier"),
		CodeChallengeMethod: domain.PKCEMethodS256,
	})
	require.NoError(t, err)

	t.Run("wrong verifier", func(t *testing.T) {
		_, err := env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "the-wrong-verifier")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("missing verifier", func(t *testing.T) {
		_, err := env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	// A failed PKCE check must not have consumed the code.
	t.Run("correct verifier still works", func(t *testing.T) {
		_, err := env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "the-right-verifier")
		require.NoError(t, err)
	})
}

func TestPlainChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:            env.Client.ID,
		UserID:              env.User.ID,
		RedirectURI:         "https://app.test/cb",
		Scopes:              []string{"read"},
		CodeChallenge:       "plain-secret",
		CodeChallengeMethod: domain.PKCEMethodPlain,
	})
	require.NoError(t, err)

	_, err = env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "plain-secret")
	require.NoError(t, err)
}

func TestExpiredCodeRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Insert a code already past its expiry, bypassing Issue.
	code := "expired-code-value"
	require.NoError(t, env.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID:          idx.New(),
		CodeHash:    cryptox.Fingerprint(code),
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		Scopes:      []string{"read"},
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	_, err := env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "")
	require.ErrorIs(t, err, ErrInvalidGrant)
}

func TestIssueValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("unknown client", func(t *testing.T) {
		_, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
			ClientID: "nope", UserID: env.User.ID, RedirectURI: "https://app.test/cb",
		})
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		_, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
			ClientID: env.Client.ID, UserID: env.User.ID, RedirectURI: "https://evil.test/cb",
		})
		require.ErrorIs(t, err, ErrInvalidRedirectURI)
	})

	t.Run("scope exceeds client", func(t *testing.T) {
		_, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
			ClientID:    env.Client.ID,
			UserID:      env.User.ID,
			RedirectURI: "https://app.test/cb",
			Scopes:      []string{"read", "admin"},
		})
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("bad challenge method", func(t *testing.T) {
		_, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
			ClientID:            env.Client.ID,
			UserID:              env.User.ID,
			RedirectURI:         "https://app.test/cb",
			Scopes:              []string{"read"},
			CodeChallenge:       "x",
			CodeChallengeMethod: "S512",
		})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestRequirePKCEForPublicClients(t *testing.T) {
	env := newTestEnv(t)
	env.Codes.RequirePKCE = true
	ctx := context.Background()

	_, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:    env.Public.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://spa.test/cb",
		Scopes:      []string{"read"},
	})
	require.ErrorIs(t, err, ErrInvalidRequest)

	// Confidential clients remain exempt.
	_, _, err = env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		Scopes:      []string{"read"},
	})
	require.NoError(t, err)
}

func TestRedeemClientAndRedirectBinding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	code, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		Scopes:      []string{"read"},
	})
	require.NoError(t, err)

	_, err = env.Codes.Redeem(ctx, code, env.Public.ID, "https://app.test/cb", "")
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = env.Codes.Redeem(ctx, code, env.Client.ID, "https://other.test/cb", "")
	require.ErrorIs(t, err, ErrInvalidRedirectURI)

	// Neither rejection consumed the code.
	_, err = env.Codes.Redeem(ctx, code, env.Client.ID, "https://app.test/cb", "")
	require.NoError(t, err)
}

func TestCleanupExpiredCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		ID:          idx.New(),
		CodeHash:    "stale",
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		ExpiresAt:   time.Now().Add(-time.Hour),
	}))

	live, _, err := env.Codes.Issue(ctx, AuthorizeRequest{
		ClientID:    env.Client.ID,
		UserID:      env.User.ID,
		RedirectURI: "https://app.test/cb",
		Scopes:      []string{"read"},
	})
	require.NoError(t, err)

	removed, err := env.Codes.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, err = env.Codes.Redeem(ctx, live, env.Client.ID, "https://app.test/cb", "")
	require.NoError(t, err)
}

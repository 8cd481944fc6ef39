package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htvo/oauth2d/pkg/totpx"
)

// enrollMFA walks the full setup+enable flow and returns the secret.
func enrollMFA(t *testing.T, env *testEnv) string {
	t.Helper()
	ctx := context.Background()

	enrollment, err := env.MFA.Setup(ctx, env.User.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")

	code, err := totpx.Code(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.MFA.Enable(ctx, env.User.ID, code))

	return enrollment.Secret
}

func TestSetupEnableDisable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	enrollMFA(t, env)

	user, err := env.Store.Users().GetUserByID(ctx, env.User.ID)
	require.NoError(t, err)
	require.True(t, user.MFAEnabled)
	require.NotEmpty(t, user.MFASecret)

	require.NoError(t, env.MFA.Disable(ctx, env.User.ID))
	user, err = env.Store.Users().GetUserByID(ctx, env.User.ID)
	require.NoError(t, err)
	require.False(t, user.MFAEnabled)
	require.Empty(t, user.MFASecret)
}

func TestEnableRequiresProofOfPossession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("no setup yet", func(t *testing.T) {
		err := env.MFA.Enable(ctx, env.User.ID, "123456")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("wrong first code", func(t *testing.T) {
		_, err := env.MFA.Setup(ctx, env.User.ID)
		require.NoError(t, err)

		err = env.MFA.Enable(ctx, env.User.ID, "000000")
		require.ErrorIs(t, err, ErrInvalidMFACode)

		user, err := env.Store.Users().GetUserByID(ctx, env.User.ID)
		require.NoError(t, err)
		require.False(t, user.MFAEnabled)
	})
}

func TestChallengeVerifyHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	secret := enrollMFA(t, env)

	token, err := env.MFA.BeginChallenge(ctx, env.User.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	code, err := totpx.Code(secret, time.Now())
	require.NoError(t, err)

	userID, err := env.MFA.VerifyChallenge(ctx, token, code)
	require.NoError(t, err)
	require.Equal(t, env.User.ID, userID)

	// The challenge is single use.
	_, err = env.MFA.VerifyChallenge(ctx, token, code)
	require.ErrorIs(t, err, ErrExpiredMFAToken)
}

func TestCodeReplayRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	secret := enrollMFA(t, env)

	code, err := totpx.Code(secret, time.Now())
	require.NoError(t, err)

	first, err := env.MFA.BeginChallenge(ctx, env.User.ID)
	require.NoError(t, err)
	_, err = env.MFA.VerifyChallenge(ctx, first, code)
	require.NoError(t, err)

	// Same numerically-valid code on a fresh challenge: replay.
	second, err := env.MFA.BeginChallenge(ctx, env.User.ID)
	require.NoError(t, err)
	_, err = env.MFA.VerifyChallenge(ctx, second, code)
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestWrongCodeRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	enrollMFA(t, env)

	token, err := env.MFA.BeginChallenge(ctx, env.User.ID)
	require.NoError(t, err)

	_, err = env.MFA.VerifyChallenge(ctx, token, "000000")
	require.ErrorIs(t, err, ErrInvalidMFACode)
}

func TestUnknownChallengeToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.MFA.VerifyChallenge(context.Background(), "no-such-challenge", "123456")
	require.ErrorIs(t, err, ErrExpiredMFAToken)
}

func TestChallengeExpires(t *testing.T) {
	env := newTestEnv(t)
	env.MFA.ChallengeTTL = 30 * time.Millisecond
	ctx := context.Background()
	secret := enrollMFA(t, env)

	token, err := env.MFA.BeginChallenge(ctx, env.User.ID)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	code, err := totpx.Code(secret, time.Now())
	require.NoError(t, err)
	_, err = env.MFA.VerifyChallenge(ctx, token, code)
	require.ErrorIs(t, err, ErrExpiredMFAToken)
}

func TestSkewedCodeAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	secret := enrollMFA(t, env)

	token, err := env.MFA.BeginChallenge(ctx, env.User.ID)
	require.NoError(t, err)

	// A code from the previous step is inside the tolerated skew.
	code, err := totpx.Code(secret, time.Now().Add(-totpx.Period))
	require.NoError(t, err)

	_, err = env.MFA.VerifyChallenge(ctx, token, code)
	require.NoError(t, err)
}

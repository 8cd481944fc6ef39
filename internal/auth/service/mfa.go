package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/htvo/oauth2d/internal/auth/kv"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/slogx"
	"github.com/htvo/oauth2d/pkg/totpx"
)

// DefaultChallengeTTL is how long a step-up challenge stays valid.
const DefaultChallengeTTL = 120 * time.Second

const (
	challengeKeyPrefix = "mfa:challenge:"
	replayKeyPrefix    = "mfa:used:"
)

// MFAService issues and verifies TOTP step-up challenges. Challenges
// and anti-replay markers live only in the ephemeral store; crashing
// mid-flight leaks nothing.
type MFAService struct {
	Store store.Store
	KV    kv.Store

	// Issuer names the account in the provisioning URL.
	Issuer string

	// ChallengeTTL defaults to DefaultChallengeTTL when zero.
	ChallengeTTL time.Duration
}

// MFAEnrollment is returned by Setup for the authenticator app.
type MFAEnrollment struct {
	Secret string
	URL    string
}

func (s *MFAService) ttl() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return DefaultChallengeTTL
}

// BeginChallenge mints an opaque challenge token mapping back to the
// user. The caller surfaces it as an "MFA required" continuation, not
// a failure.
func (s *MFAService) BeginChallenge(ctx context.Context, userID string) (string, error) {
	token, err := cryptox.RandomToken(cryptox.ChallengeBytes)
	if err != nil {
		return "", err
	}
	if err := s.KV.Set(ctx, challengeKeyPrefix+token, userID, s.ttl()); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyChallenge resolves the challenge token to a user and checks
// the TOTP code against the current and adjacent time steps. A code
// that matches but was already spent within the replay window is
// rejected even though it is still numerically valid.
func (s *MFAService) VerifyChallenge(ctx context.Context, challengeToken, code string) (string, error) {
	l := slogx.FromContext(ctx)

	userID, err := s.KV.Get(ctx, challengeKeyPrefix+challengeToken)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", ErrExpiredMFAToken
		}
		return "", err
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrExpiredMFAToken
		}
		return "", err
	}
	if !user.MFAEnabled || user.MFASecret == "" {
		return "", ErrInvalidMFACode
	}

	if !totpx.Validate(code, user.MFASecret, time.Now()) {
		l.Info("mfa code rejected", slog.String("user_id", userID))
		return "", ErrInvalidMFACode
	}

	// Anti-replay: the marker outlives the skew window, so the same
	// code cannot be spent twice even across adjacent steps.
	fresh, err := s.KV.SetNX(ctx, replayKeyPrefix+userID+":"+code, "1", 2*totpx.Period)
	if err != nil {
		return "", err
	}
	if !fresh {
		l.Warn("mfa code replay detected", slog.String("user_id", userID))
		return "", ErrInvalidMFACode
	}

	// The challenge is single use.
	if err := s.KV.Delete(ctx, challengeKeyPrefix+challengeToken); err != nil {
		l.Warn("failed to delete mfa challenge", slog.Any("error", err))
	}

	return userID, nil
}

// Setup generates a fresh secret and stages it on the account. MFA is
// not enabled until Enable proves the user holds the authenticator.
func (s *MFAService) Setup(ctx context.Context, userID string) (MFAEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return MFAEnrollment{}, err
	}

	key, err := totpx.GenerateKey(s.Issuer, user.Username)
	if err != nil {
		return MFAEnrollment{}, err
	}
	if err := s.Store.Users().SetPendingMFASecret(ctx, userID, key.Secret); err != nil {
		return MFAEnrollment{}, err
	}

	return MFAEnrollment{Secret: key.Secret, URL: key.URL}, nil
}

// Enable flips MFA on after the first code proves possession of the
// staged secret.
func (s *MFAService) Enable(ctx context.Context, userID, firstCode string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.MFAPendingSecret == "" {
		return ErrInvalidRequest.WithDescription("no pending MFA enrolment, call setup first")
	}
	if !totpx.Validate(firstCode, user.MFAPendingSecret, time.Now()) {
		return ErrInvalidMFACode
	}
	return s.Store.Users().EnableMFA(ctx, userID)
}

// Disable hard-resets MFA: the secret is gone and re-enabling means
// the full setup flow again.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	return s.Store.Users().DisableMFA(ctx, userID)
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/slogx"
)

// Account lockout policy.
const (
	DefaultMaxLoginFailures = 10
	DefaultLockoutDuration  = 15 * time.Minute
)

// LoginStatus discriminates the closed LoginOutcome variant.
type LoginStatus int

const (
	LoginSucceeded LoginStatus = iota
	LoginMFARequired
	LoginFailed
)

// LoginOutcome is the result of a login attempt. Exactly one of the
// payload fields is meaningful, selected by Status: Tokens on success,
// MFAToken when a step-up challenge was issued, Err on failure. The
// challenge arm is a continuation, not a failure.
type LoginOutcome struct {
	Status   LoginStatus
	Tokens   domain.TokenPair
	MFAToken string
	Err      *Error
}

func loginSuccess(pair domain.TokenPair) LoginOutcome {
	return LoginOutcome{Status: LoginSucceeded, Tokens: pair}
}

func loginChallenge(token string) LoginOutcome {
	return LoginOutcome{Status: LoginMFARequired, MFAToken: token}
}

func loginFailure(err *Error) LoginOutcome {
	return LoginOutcome{Status: LoginFailed, Err: err}
}

// AuthService composes the managers into the login flow and the token
// endpoint's grant dispatch.
type AuthService struct {
	Store   store.Store
	Tokens  *TokenService
	Codes   *CodeService
	MFA     *MFAService
	Limiter *RateLimiter

	// Zero values fall back to the defaults above.
	MaxLoginFailures int
	LockoutDuration  time.Duration
}

type LoginRequest struct {
	Username string
	Password string
	ClientID string
	Scopes   []string
}

type VerifyMFARequest struct {
	ChallengeToken string
	Code           string
	ClientID       string
	Scopes         []string
}

// TokenRequest carries the form parameters of the token endpoint.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Username     string
	Password     string
	Scopes       []string
}

func (s *AuthService) maxFailures() int {
	if s.MaxLoginFailures > 0 {
		return s.MaxLoginFailures
	}
	return DefaultMaxLoginFailures
}

func (s *AuthService) lockout() time.Duration {
	if s.LockoutDuration > 0 {
		return s.LockoutDuration
	}
	return DefaultLockoutDuration
}

// Login authenticates a user with username and password. Domain
// failures come back inside the outcome; the error return is reserved
// for storage and signing faults.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (LoginOutcome, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	decision := s.Limiter.CheckAndConsume(ctx, ActionLogin, req.Username)
	if !decision.Allowed {
		return loginFailure(rateLimited(decision)), nil
	}

	client, scopes, err := s.grantClientWithScopes(ctx, req.ClientID, domain.GrantPassword, req.Scopes)
	if err != nil {
		if svcErr, ok := AsError(err); ok {
			return loginFailure(svcErr), nil
		}
		return LoginOutcome{}, err
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return loginFailure(ErrInvalidGrant.WithDescription("invalid username or password")), nil
		}
		return LoginOutcome{}, err
	}

	if !user.Enabled {
		return loginFailure(ErrAccountDisabled), nil
	}
	if user.Locked(now) {
		return loginFailure(ErrAccountLocked.WithMeta("locked_until", user.LockedUntil.Unix())), nil
	}

	if err := cryptox.VerifySecret(req.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrHashMismatch) {
			return LoginOutcome{}, err
		}
		if err := s.recordFailure(ctx, user, now); err != nil {
			l.Warn("failed to record login failure", slog.Any("error", err))
		}
		return loginFailure(ErrInvalidGrant.WithDescription("invalid username or password")), nil
	}

	if user.MFAEnabled {
		token, err := s.MFA.BeginChallenge(ctx, user.ID)
		if err != nil {
			return LoginOutcome{}, err
		}
		return loginChallenge(token), nil
	}

	pair, err := s.issueForUser(ctx, user, client, scopes)
	if err != nil {
		return LoginOutcome{}, err
	}

	s.settleLogin(ctx, user)
	return loginSuccess(pair), nil
}

// VerifyMFA completes a challenged login. The challenge token is the
// rate limit identifier so guessing burns the attacker's own budget.
func (s *AuthService) VerifyMFA(ctx context.Context, req VerifyMFARequest) (domain.TokenPair, error) {
	decision := s.Limiter.CheckAndConsume(ctx, ActionMFA, req.ChallengeToken)
	if !decision.Allowed {
		return domain.TokenPair{}, rateLimited(decision)
	}

	userID, err := s.MFA.VerifyChallenge(ctx, req.ChallengeToken, req.Code)
	if err != nil {
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrExpiredMFAToken
		}
		return domain.TokenPair{}, err
	}
	if !user.Enabled {
		return domain.TokenPair{}, ErrAccountDisabled
	}
	// The account may have been locked between the password step and the
	// code submission.
	if user.Locked(time.Now()) {
		return domain.TokenPair{}, ErrAccountLocked.WithMeta("locked_until", user.LockedUntil.Unix())
	}

	client, scopes, err := s.grantClientWithScopes(ctx, req.ClientID, domain.GrantPassword, req.Scopes)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.issueForUser(ctx, user, client, scopes)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.settleLogin(ctx, user)
	return pair, nil
}

// ExchangeToken dispatches a token-endpoint request by grant type.
func (s *AuthService) ExchangeToken(ctx context.Context, req TokenRequest) (domain.TokenPair, error) {
	switch req.GrantType {
	case domain.GrantAuthorizationCode:
		return s.exchangeAuthorizationCode(ctx, req)
	case domain.GrantRefreshToken:
		return s.exchangeRefreshToken(ctx, req)
	case domain.GrantClientCredentials:
		return s.exchangeClientCredentials(ctx, req)
	case domain.GrantPassword:
		return s.exchangePassword(ctx, req)
	default:
		return domain.TokenPair{}, ErrUnsupportedGrantType
	}
}

func (s *AuthService) exchangeAuthorizationCode(ctx context.Context, req TokenRequest) (domain.TokenPair, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantAuthorizationCode)
	if err != nil {
		return domain.TokenPair{}, err
	}

	code, err := s.Codes.Redeem(ctx, req.Code, client.ID, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidGrant.WithDescription("user no longer exists")
		}
		return domain.TokenPair{}, err
	}
	if !user.Enabled {
		return domain.TokenPair{}, ErrAccountDisabled
	}

	return s.Tokens.Issue(ctx, IssueParams{
		UserID:     user.ID,
		Username:   user.Username,
		ClientID:   client.ID,
		Scopes:     code.Scopes,
		AccessTTL:  client.AccessTokenTTL,
		RefreshTTL: client.RefreshTokenTTL,
	})
}

func (s *AuthService) exchangeRefreshToken(ctx context.Context, req TokenRequest) (domain.TokenPair, error) {
	if req.RefreshToken == "" {
		return domain.TokenPair{}, ErrInvalidRequest.WithDescription("refresh_token is required")
	}
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantRefreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return s.Tokens.Rotate(ctx, req.RefreshToken, client.ID)
}

func (s *AuthService) exchangeClientCredentials(ctx context.Context, req TokenRequest) (domain.TokenPair, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantClientCredentials)
	if err != nil {
		return domain.TokenPair{}, err
	}
	// A public client could mint tokens for free here, so the grant is
	// confidential-only.
	if client.Public() {
		return domain.TokenPair{}, ErrInvalidClient.WithDescription("client_credentials requires a confidential client")
	}

	scopes, err := effectiveScopes(client, req.Scopes)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return s.Tokens.Issue(ctx, IssueParams{
		ClientID:  client.ID,
		Username:  client.Name,
		Scopes:    scopes,
		AccessTTL: client.AccessTokenTTL,
		NoRefresh: true,
	})
}

func (s *AuthService) exchangePassword(ctx context.Context, req TokenRequest) (domain.TokenPair, error) {
	if req.Username == "" || req.Password == "" {
		return domain.TokenPair{}, ErrInvalidRequest.WithDescription("username and password are required")
	}
	if _, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret, domain.GrantPassword); err != nil {
		return domain.TokenPair{}, err
	}

	outcome, err := s.Login(ctx, LoginRequest{
		Username: req.Username,
		Password: req.Password,
		ClientID: req.ClientID,
		Scopes:   req.Scopes,
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	switch outcome.Status {
	case LoginSucceeded:
		return outcome.Tokens, nil
	case LoginMFARequired:
		return domain.TokenPair{}, ErrMFARequired.WithMeta("mfa_token", outcome.MFAToken)
	default:
		return domain.TokenPair{}, outcome.Err
	}
}

// grantClient loads the client and checks it may exercise the grant.
// No secret verification; the first-party login endpoint uses this
// directly since no client secret is in play there.
func (s *AuthService) grantClient(ctx context.Context, clientID, grant string) (domain.Client, error) {
	if clientID == "" {
		return domain.Client{}, ErrInvalidRequest.WithDescription("client_id is required")
	}

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	if !client.Enabled {
		return domain.Client{}, ErrInvalidClient.WithDescription("client is disabled")
	}
	if !client.AllowsGrant(grant) {
		return domain.Client{}, ErrInvalidClient.WithDescription("client may not use this grant type")
	}
	return client, nil
}

// authenticateClient is grantClient plus secret verification for
// confidential clients. Token-endpoint grants go through here.
func (s *AuthService) authenticateClient(ctx context.Context, clientID, clientSecret, grant string) (domain.Client, error) {
	client, err := s.grantClient(ctx, clientID, grant)
	if err != nil {
		return domain.Client{}, err
	}
	return s.verifyClientSecret(ctx, client, clientSecret)
}

// AuthenticateClient verifies client credentials for endpoints that
// are not tied to a grant type, introspection and revocation.
func (s *AuthService) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	if clientID == "" {
		return domain.Client{}, ErrInvalidRequest.WithDescription("client_id is required")
	}

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	if !client.Enabled {
		return domain.Client{}, ErrInvalidClient.WithDescription("client is disabled")
	}
	return s.verifyClientSecret(ctx, client, clientSecret)
}

func (s *AuthService) verifyClientSecret(ctx context.Context, client domain.Client, clientSecret string) (domain.Client, error) {
	if !client.Public() {
		if clientSecret == "" {
			return domain.Client{}, ErrInvalidClient
		}
		if err := cryptox.VerifySecret(clientSecret, client.SecretHash); err != nil {
			if errors.Is(err, cryptox.ErrHashMismatch) {
				slogx.FromContext(ctx).Info("client secret verification failed",
					slog.String("client_id", client.ID))
				return domain.Client{}, ErrInvalidClient
			}
			return domain.Client{}, err
		}
	}

	return client, nil
}

func (s *AuthService) grantClientWithScopes(ctx context.Context, clientID, grant string, requested []string) (domain.Client, []string, error) {
	client, err := s.grantClient(ctx, clientID, grant)
	if err != nil {
		return domain.Client{}, nil, err
	}
	scopes, err := effectiveScopes(client, requested)
	if err != nil {
		return domain.Client{}, nil, err
	}
	return client, scopes, nil
}

func (s *AuthService) issueForUser(ctx context.Context, user domain.User, client domain.Client, scopes []string) (domain.TokenPair, error) {
	return s.Tokens.Issue(ctx, IssueParams{
		UserID:     user.ID,
		Username:   user.Username,
		ClientID:   client.ID,
		Scopes:     scopes,
		AccessTTL:  client.AccessTokenTTL,
		RefreshTTL: client.RefreshTokenTTL,
	})
}

// settleLogin clears failure tracking after a successful
// authentication.
func (s *AuthService) settleLogin(ctx context.Context, user domain.User) {
	l := slogx.FromContext(ctx)
	if err := s.Store.Users().ResetLoginFailures(ctx, user.ID); err != nil {
		l.Warn("failed to reset login failures", slog.Any("error", err))
	}
	s.Limiter.Reset(ctx, ActionLogin, user.Username)
}

func (s *AuthService) recordFailure(ctx context.Context, user domain.User, now time.Time) error {
	failures := user.FailedLogins + 1
	var lockedUntil *int64
	if failures >= s.maxFailures() {
		until := now.Add(s.lockout()).Unix()
		lockedUntil = &until
		slogx.FromContext(ctx).Warn("account locked after repeated failures",
			slog.String("user_id", user.ID),
			slog.Int("failures", failures),
		)
		// A locked account keeps no live sessions.
		if err := s.Tokens.RevokeAllForUser(ctx, user.ID); err != nil {
			slogx.FromContext(ctx).Warn("failed to revoke tokens for locked account",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
	}
	return s.Store.Users().RecordLoginFailure(ctx, user.ID, failures, lockedUntil)
}

func effectiveScopes(client domain.Client, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return client.Scopes, nil
	}
	if !client.AllowsScopes(requested) {
		return nil, ErrInvalidScope
	}
	return requested, nil
}

func rateLimited(decision RateDecision) *Error {
	seconds := int64(math.Ceil(decision.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return ErrRateLimited.WithMeta("retry_after", seconds)
}

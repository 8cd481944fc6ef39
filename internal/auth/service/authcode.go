package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/idx"
	"github.com/htvo/oauth2d/pkg/slogx"
)

// DefaultCodeTTL is how long an authorization code stays redeemable.
const DefaultCodeTTL = 300 * time.Second

// CodeService mints and redeems single-use authorization codes.
type CodeService struct {
	Store store.Store

	// CodeTTL defaults to DefaultCodeTTL when zero.
	CodeTTL time.Duration

	// RequirePKCE forces public clients to bind a code challenge at
	// issuance.
	RequirePKCE bool
}

// AuthorizeRequest carries the validated authorize-endpoint inputs.
type AuthorizeRequest struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
}

func (s *CodeService) ttl() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

// CheckRedirect verifies the client exists, is enabled and has the
// redirect URI registered. The authorize endpoint uses it to decide
// whether an error may be returned by redirect at all: failing either
// check means no redirect happens.
func (s *CodeService) CheckRedirect(ctx context.Context, clientID, redirectURI string) error {
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidClient
		}
		return err
	}
	if !client.Enabled {
		return ErrInvalidClient.WithDescription("client is disabled")
	}
	if !client.AllowsRedirect(redirectURI) {
		return ErrInvalidRedirectURI
	}
	return nil
}

// Issue validates the request against the client registration and
// mints a fresh code. The returned plaintext goes into the redirect
// and is never stored; only its fingerprint is.
func (s *CodeService) Issue(ctx context.Context, req AuthorizeRequest) (code string, expiresIn time.Duration, err error) {
	now := time.Now()

	client, err := s.Store.Clients().GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", 0, ErrInvalidClient
		}
		return "", 0, err
	}
	if !client.Enabled {
		return "", 0, ErrInvalidClient.WithDescription("client is disabled")
	}
	if !client.AllowsGrant(domain.GrantAuthorizationCode) {
		return "", 0, ErrInvalidClient.WithDescription("client may not use the authorization_code grant")
	}
	if !client.AllowsRedirect(req.RedirectURI) {
		return "", 0, ErrInvalidRedirectURI
	}
	if !client.AllowsScopes(req.Scopes) {
		return "", 0, ErrInvalidScope
	}

	switch req.CodeChallengeMethod {
	case "", domain.PKCEMethodS256, domain.PKCEMethodPlain:
	default:
		return "", 0, ErrInvalidRequest.WithDescription("unknown code_challenge_method")
	}
	if req.CodeChallengeMethod != "" && req.CodeChallenge == "" {
		return "", 0, ErrInvalidRequest.WithDescription("code_challenge_method given without code_challenge")
	}
	if s.RequirePKCE && client.Public() && req.CodeChallenge == "" {
		return "", 0, ErrInvalidRequest.WithDescription("PKCE is required for public clients")
	}

	code, err = cryptox.RandomToken(cryptox.CodeBytes)
	if err != nil {
		return "", 0, err
	}

	method := req.CodeChallengeMethod
	if req.CodeChallenge != "" && method == "" {
		method = domain.PKCEMethodPlain
	}

	record := domain.AuthorizationCode{
		ID:                  idx.New(),
		CodeHash:            cryptox.Fingerprint(code),
		ClientID:            client.ID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExpiresAt:           now.Add(s.ttl()),
	}
	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		return "", 0, err
	}

	return code, s.ttl(), nil
}

// Redeem validates and consumes a code. Consumption is a conditional
// update on used_at, so concurrent redemptions of the same code elect
// exactly one winner; everyone else gets invalid_grant.
func (s *CodeService) Redeem(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (domain.AuthorizationCode, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" || redirectURI == "" {
		return domain.AuthorizationCode{}, ErrInvalidRequest.WithDescription("code and redirect_uri are required")
	}

	record, err := s.Store.AuthorizationCodes().GetAuthorizationCodeByHash(ctx, cryptox.Fingerprint(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthorizationCode{}, ErrInvalidGrant.WithDescription("invalid authorization code")
		}
		return domain.AuthorizationCode{}, err
	}

	if record.UsedAt != nil {
		l.Warn("authorization code replayed",
			slog.String("code_id", record.ID),
			slog.String("client_id", clientID),
		)
		return domain.AuthorizationCode{}, ErrInvalidGrant.WithDescription("authorization code already used")
	}
	if record.Expired(now) {
		return domain.AuthorizationCode{}, ErrInvalidGrant.WithDescription("authorization code expired")
	}
	if record.ClientID != clientID {
		return domain.AuthorizationCode{}, ErrInvalidClient
	}
	if subtle.ConstantTimeCompare([]byte(record.RedirectURI), []byte(redirectURI)) != 1 {
		return domain.AuthorizationCode{}, ErrInvalidRedirectURI.WithDescription("redirect_uri does not match the one bound to the code")
	}
	if err := verifyPKCE(record, codeVerifier); err != nil {
		return domain.AuthorizationCode{}, err
	}

	won, err := s.Store.AuthorizationCodes().ConsumeAuthorizationCode(ctx, record.ID, now.Unix())
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	if !won {
		l.Warn("lost authorization code redemption race", slog.String("code_id", record.ID))
		return domain.AuthorizationCode{}, ErrInvalidGrant.WithDescription("authorization code already used")
	}

	usedAt := now
	record.UsedAt = &usedAt
	return record, nil
}

// CleanupExpired removes codes past their expiry, used or not. Safe
// alongside live redemption since every matched row is already
// unredeemable.
func (s *CodeService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.Store.AuthorizationCodes().DeleteExpiredAuthorizationCodes(ctx, time.Now().Unix())
}

func verifyPKCE(record domain.AuthorizationCode, verifier string) error {
	if !record.HasPKCE() {
		return nil
	}

	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return ErrInvalidRequest.WithDescription("code_verifier is required")
	}

	switch record.CodeChallengeMethod {
	case domain.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		expected := base64.RawURLEncoding.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(record.CodeChallenge), []byte(expected)) != 1 {
			return ErrInvalidGrant.WithDescription("code challenge verification failed")
		}
	case domain.PKCEMethodPlain:
		if subtle.ConstantTimeCompare([]byte(record.CodeChallenge), []byte(verifier)) != 1 {
			return ErrInvalidGrant.WithDescription("code challenge verification failed")
		}
	default:
		return ErrInvalidGrant.WithDescription("code challenge verification failed")
	}
	return nil
}

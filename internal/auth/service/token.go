package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/idx"
	"github.com/htvo/oauth2d/pkg/jwtx"
	"github.com/htvo/oauth2d/pkg/slogx"
)

// TokenService owns the access/refresh token lifecycle: issuance,
// rotation, revocation, introspection and validation.
type TokenService struct {
	Store  store.Store
	Signer jwtx.Signer
	Issuer string

	// Server-wide defaults; per-client TTLs override them.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// IssueParams describes one token pair to mint. UserID is empty for
// client_credentials, where the client is the subject. A zero TTL
// falls back to the service default; FamilyID empty starts a new
// rotation family.
type IssueParams struct {
	UserID     string
	Username   string
	ClientID   string
	Scopes     []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	FamilyID   string

	// NoRefresh skips the refresh token, for grants whose caller can
	// always re-authenticate.
	NoRefresh bool
}

// Issue mints an access token (signed JWT, stored by fingerprint) and
// a paired opaque refresh token, persisted in the same transaction.
func (s *TokenService) Issue(ctx context.Context, p IssueParams) (domain.TokenPair, error) {
	var pair domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		pair, err = s.issuePair(ctx, tx, p, time.Now())
		return err
	})
	return pair, err
}

// issuePair runs against whichever store it is handed so Rotate can
// call it inside its own transaction.
func (s *TokenService) issuePair(ctx context.Context, st store.Store, p IssueParams, now time.Time) (domain.TokenPair, error) {
	accessTTL := p.AccessTTL
	if accessTTL == 0 {
		accessTTL = s.AccessTTL
	}
	refreshTTL := p.RefreshTTL
	if refreshTTL == 0 {
		refreshTTL = s.RefreshTTL
	}

	subject := p.UserID
	if subject == "" {
		subject = p.ClientID
	}

	accessID := idx.New()
	claims := jwtx.NewAccessClaims(s.Issuer, subject, []string{p.ClientID}, p.Scopes, p.Username, accessTTL, now)
	claims.ID = accessID

	signed, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.TokenPair{}, err
	}

	if err := st.AccessTokens().CreateAccessToken(ctx, domain.AccessToken{
		ID:        accessID,
		TokenHash: cryptox.Fingerprint(signed),
		ClientID:  p.ClientID,
		UserID:    p.UserID,
		Scopes:    p.Scopes,
		ExpiresAt: now.Add(accessTTL),
	}); err != nil {
		return domain.TokenPair{}, err
	}

	pair := domain.TokenPair{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTTL.Seconds()),
		Scope:       strings.Join(p.Scopes, " "),
	}

	if !p.NoRefresh {
		refreshOpaque, err := cryptox.RandomToken(cryptox.RefreshBytes)
		if err != nil {
			return domain.TokenPair{}, err
		}

		family := p.FamilyID
		if family == "" {
			family = idx.New()
		}

		if err := st.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID:            idx.New(),
			TokenHash:     cryptox.Fingerprint(refreshOpaque),
			AccessTokenID: accessID,
			FamilyID:      family,
			ClientID:      p.ClientID,
			UserID:        p.UserID,
			Scopes:        p.Scopes,
			ExpiresAt:     now.Add(refreshTTL),
		}); err != nil {
			return domain.TokenPair{}, err
		}

		pair.RefreshToken = refreshOpaque
		pair.RefreshExpiresIn = int64(refreshTTL.Seconds())
	}

	return pair, nil
}

// Rotate consumes a refresh token and issues a replacement pair in one
// transaction. A refresh token rotates exactly once: presenting it
// again after a successful rotation is treated as theft and revokes
// the whole family.
func (s *TokenService) Rotate(ctx context.Context, refreshOpaque, clientID string) (domain.TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	var (
		pair   domain.TokenPair
		reused domain.RefreshToken
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.Fingerprint(refreshOpaque))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant.WithDescription("refresh token is not recognised")
			}
			return err
		}

		if rt.Revoked {
			// Reuse of a rotated-out token. The family revocation must
			// survive this transaction, and returning an error here
			// would roll it back, so it runs after commit.
			reused = rt
			return nil
		}
		if rt.Expired(now) {
			return ErrInvalidGrant.WithDescription("refresh token expired")
		}
		if rt.ClientID != clientID {
			return ErrInvalidClient
		}

		var username string
		if rt.UserID != "" {
			user, err := tx.Users().GetUserByID(ctx, rt.UserID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return ErrInvalidGrant.WithDescription("user no longer exists")
				}
				return err
			}
			if !user.Enabled {
				return ErrAccountDisabled
			}
			username = user.Username
		}

		winner, err := tx.RefreshTokens().ConsumeRefreshToken(ctx, rt.ID)
		if err != nil {
			return err
		}
		if !winner {
			// Lost a simultaneous rotation of the same token.
			return ErrInvalidGrant.WithDescription("refresh token has been revoked")
		}
		if err := tx.AccessTokens().RevokeAccessToken(ctx, rt.AccessTokenID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		pair, err = s.issuePair(ctx, tx, IssueParams{
			UserID:   rt.UserID,
			Username: username,
			ClientID: rt.ClientID,
			Scopes:   rt.Scopes,
			FamilyID: rt.FamilyID,
		}, now)
		return err
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	if reused.ID != "" {
		// Kill every descendant in its own committed transaction.
		l.Warn("refresh token reuse detected, revoking family",
			slog.String("family_id", reused.FamilyID),
			slog.String("user_id", reused.UserID),
		)
		if err := s.Store.RefreshTokens().RevokeFamily(ctx, reused.FamilyID); err != nil {
			l.Error("failed to revoke token family",
				slog.String("family_id", reused.FamilyID),
				slog.Any("error", err),
			)
		}
		return domain.TokenPair{}, ErrInvalidGrant.WithDescription("refresh token has been revoked")
	}
	return pair, nil
}

// Revoke accepts either token kind, finds it by fingerprint and
// revokes it together with its paired token. Unknown values are a
// silent no-op per RFC 7009.
func (s *TokenService) Revoke(ctx context.Context, tokenValue string) error {
	fp := cryptox.Fingerprint(tokenValue)

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if at, err := tx.AccessTokens().GetAccessTokenByHash(ctx, fp); err == nil {
			if err := tx.AccessTokens().RevokeAccessToken(ctx, at.ID); err != nil {
				return err
			}
			if rt, err := tx.RefreshTokens().GetRefreshTokenByAccessTokenID(ctx, at.ID); err == nil {
				return tx.RefreshTokens().RevokeRefreshToken(ctx, rt.ID)
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, fp); err == nil {
			if err := tx.RefreshTokens().RevokeRefreshToken(ctx, rt.ID); err != nil {
				return err
			}
			if err := tx.AccessTokens().RevokeAccessToken(ctx, rt.AccessTokenID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		return nil
	})
}

// RevokeAllForUser revokes every live token belonging to a user, for
// password resets and admin lockouts.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.AccessTokens().RevokeAllUserAccessTokens(ctx, userID); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
	})
}

// Introspect implements RFC 7662 semantics: any token that is unknown,
// expired or revoked comes back as just {active:false}. Only store
// failures are errors.
func (s *TokenService) Introspect(ctx context.Context, tokenValue string) (domain.Introspection, error) {
	now := time.Now()
	fp := cryptox.Fingerprint(tokenValue)

	if at, err := s.Store.AccessTokens().GetAccessTokenByHash(ctx, fp); err == nil {
		if !at.Active(now) {
			return domain.Introspection{}, nil
		}
		return domain.Introspection{
			Active:    true,
			Scope:     strings.Join(at.Scopes, " "),
			ClientID:  at.ClientID,
			Username:  s.lookupUsername(ctx, at.UserID),
			TokenType: "Bearer",
			Sub:       introspectSubject(at.UserID, at.ClientID),
			Exp:       at.ExpiresAt.Unix(),
			Iat:       at.CreatedAt.Unix(),
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Introspection{}, err
	}

	if rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp); err == nil {
		if !rt.Active(now) {
			return domain.Introspection{}, nil
		}
		return domain.Introspection{
			Active:    true,
			Scope:     strings.Join(rt.Scopes, " "),
			ClientID:  rt.ClientID,
			Username:  s.lookupUsername(ctx, rt.UserID),
			TokenType: "refresh_token",
			Sub:       introspectSubject(rt.UserID, rt.ClientID),
			Exp:       rt.ExpiresAt.Unix(),
			Iat:       rt.CreatedAt.Unix(),
		}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Introspection{}, err
	}

	return domain.Introspection{}, nil
}

// Validate is the resource-server check. Unlike Introspect it says
// why a token is unusable: revoked, expired or plain invalid.
func (s *TokenService) Validate(ctx context.Context, tokenValue string) (domain.AccessToken, error) {
	if _, err := s.Signer.Verify(tokenValue); err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return domain.AccessToken{}, ErrTokenExpired
		}
		return domain.AccessToken{}, ErrTokenInvalid
	}

	at, err := s.Store.AccessTokens().GetAccessTokenByHash(ctx, cryptox.Fingerprint(tokenValue))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AccessToken{}, ErrTokenInvalid
		}
		return domain.AccessToken{}, err
	}

	now := time.Now()
	if at.Revoked {
		return domain.AccessToken{}, ErrTokenRevoked
	}
	if at.Expired(now) {
		return domain.AccessToken{}, ErrTokenExpired
	}
	return at, nil
}

// CleanupExpired sweeps terminal token rows (expired or revoked).
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	now := time.Now().Unix()

	accessRemoved, err := s.Store.AccessTokens().DeleteExpiredAccessTokens(ctx, now)
	if err != nil {
		return 0, err
	}
	refreshRemoved, err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now)
	if err != nil {
		return accessRemoved, err
	}
	return accessRemoved + refreshRemoved, nil
}

func (s *TokenService) lookupUsername(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Username
}

func introspectSubject(userID, clientID string) string {
	if userID != "" {
		return userID
	}
	return clientID
}

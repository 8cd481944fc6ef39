package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
)

type accessTokensRepo struct {
	db dbtx
}

const accessTokenColumns = `id, token_hash, client_id, user_id, scopes, revoked,
	expires_at, created_at`

func scanAccessToken(row *sql.Row) (domain.AccessToken, error) {
	var (
		t         domain.AccessToken
		scopes    string
		revoked   int64
		expiresAt int64
		createdAt int64
	)
	err := row.Scan(&t.ID, &t.TokenHash, &t.ClientID, &t.UserID, &scopes,
		&revoked, &expiresAt, &createdAt)
	if err != nil {
		return domain.AccessToken{}, mapNotFound(err)
	}
	t.Scopes = splitScopes(scopes)
	t.Revoked = revoked != 0
	t.ExpiresAt = fromUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

func (r *accessTokensRepo) CreateAccessToken(ctx context.Context, t domain.AccessToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_tokens (id, token_hash, client_id, user_id, scopes,
			revoked, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.TokenHash, t.ClientID, t.UserID, joinScopes(t.Scopes),
		t.ExpiresAt.Unix(), time.Now().Unix())
	return err
}

func (r *accessTokensRepo) GetAccessTokenByID(ctx context.Context, id string) (domain.AccessToken, error) {
	return scanAccessToken(r.db.QueryRowContext(ctx,
		`SELECT `+accessTokenColumns+` FROM access_tokens WHERE id = ?`, id))
}

func (r *accessTokensRepo) GetAccessTokenByHash(ctx context.Context, hash string) (domain.AccessToken, error) {
	return scanAccessToken(r.db.QueryRowContext(ctx,
		`SELECT `+accessTokenColumns+` FROM access_tokens WHERE token_hash = ?`, hash))
}

func (r *accessTokensRepo) RevokeAccessToken(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE access_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *accessTokensRepo) RevokeAllUserAccessTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE access_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID)
	return err
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM access_tokens WHERE expires_at <= ? OR revoked = 1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

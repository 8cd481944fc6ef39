package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, token_hash, access_token_id, family_id,
	client_id, user_id, scopes, revoked, expires_at, created_at`

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		scopes    string
		revoked   int64
		expiresAt int64
		createdAt int64
	)
	err := row.Scan(&t.ID, &t.TokenHash, &t.AccessTokenID, &t.FamilyID,
		&t.ClientID, &t.UserID, &scopes, &revoked, &expiresAt, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.Scopes = splitScopes(scopes)
	t.Revoked = revoked != 0
	t.ExpiresAt = fromUnix(expiresAt)
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, access_token_id, family_id,
			client_id, user_id, scopes, revoked, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.ID, t.TokenHash, t.AccessTokenID, t.FamilyID, t.ClientID, t.UserID,
		joinScopes(t.Scopes), t.ExpiresAt.Unix(), time.Now().Unix())
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash))
}

func (r *refreshTokensRepo) GetRefreshTokenByAccessTokenID(ctx context.Context, accessTokenID string) (domain.RefreshToken, error) {
	return scanRefreshToken(r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE access_token_id = ?`, accessTokenID))
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ConsumeRefreshToken mirrors ConsumeAuthorizationCode: the update only
// lands while revoked is still 0, so of any number of simultaneous
// rotations exactly one sees rows affected = 1.
func (r *refreshTokensRepo) ConsumeRefreshToken(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ? AND revoked = 0`, familyID)
	return err
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ? OR revoked = 1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

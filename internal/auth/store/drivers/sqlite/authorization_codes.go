package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
)

type codesRepo struct {
	db dbtx
}

const codeColumns = `id, code_hash, client_id, user_id, redirect_uri, scopes,
	code_challenge, code_challenge_method, used_at, expires_at, created_at`

func scanCode(row *sql.Row) (domain.AuthorizationCode, error) {
	var (
		c         domain.AuthorizationCode
		scopes    string
		usedAt    sql.NullInt64
		expiresAt int64
		createdAt int64
	)
	err := row.Scan(&c.ID, &c.CodeHash, &c.ClientID, &c.UserID, &c.RedirectURI,
		&scopes, &c.CodeChallenge, &c.CodeChallengeMethod, &usedAt,
		&expiresAt, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	c.Scopes = splitScopes(scopes)
	c.UsedAt = fromUnixPtr(usedAt)
	c.ExpiresAt = fromUnix(expiresAt)
	c.CreatedAt = fromUnix(createdAt)
	return c, nil
}

func (r *codesRepo) CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (id, code_hash, client_id, user_id,
			redirect_uri, scopes, code_challenge, code_challenge_method,
			used_at, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		c.ID, c.CodeHash, c.ClientID, c.UserID, c.RedirectURI,
		joinScopes(c.Scopes), c.CodeChallenge, c.CodeChallengeMethod,
		c.ExpiresAt.Unix(), time.Now().Unix())
	return err
}

func (r *codesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	return scanCode(r.db.QueryRowContext(ctx,
		`SELECT `+codeColumns+` FROM authorization_codes WHERE code_hash = ?`, hash))
}

// ConsumeAuthorizationCode is the single-use guard. The conditional
// update only lands when used_at is still NULL, so of any number of
// concurrent redemptions exactly one sees rows affected = 1.
func (r *codesRepo) ConsumeAuthorizationCode(ctx context.Context, id string, usedAt int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorization_codes SET used_at = ?
		WHERE id = ? AND used_at IS NULL`,
		usedAt, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *codesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, password_hash, enabled, failed_logins,
	locked_until, mfa_enabled, mfa_secret, mfa_pending_secret, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u           domain.User
		enabled     int64
		lockedUntil sql.NullInt64
		mfaEnabled  int64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &enabled,
		&u.FailedLogins, &lockedUntil, &mfaEnabled, &u.MFASecret,
		&u.MFAPendingSecret, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Enabled = enabled != 0
	u.LockedUntil = fromUnixPtr(lockedUntil)
	u.MFAEnabled = mfaEnabled != 0
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, enabled,
			failed_logins, locked_until, mfa_enabled, mfa_secret,
			mfa_pending_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, boolInt(u.Enabled),
		u.FailedLogins, toUnixPtr(u.LockedUntil), boolInt(u.MFAEnabled),
		u.MFASecret, u.MFAPendingSecret, now, now)
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return r.exec(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().Unix(), userID)
}

func (r *usersRepo) RecordLoginFailure(ctx context.Context, userID string, failures int, lockedUntil *int64) error {
	var locked sql.NullInt64
	if lockedUntil != nil {
		locked = sql.NullInt64{Int64: *lockedUntil, Valid: true}
	}
	return r.exec(ctx, `
		UPDATE users SET failed_logins = ?, locked_until = ?, updated_at = ?
		WHERE id = ?`,
		failures, locked, time.Now().Unix(), userID)
}

func (r *usersRepo) ResetLoginFailures(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET failed_logins = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().Unix(), userID)
}

func (r *usersRepo) SetPendingMFASecret(ctx context.Context, userID string, secret string) error {
	return r.exec(ctx, `
		UPDATE users SET mfa_pending_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().Unix(), userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET mfa_enabled = 1, mfa_secret = mfa_pending_secret,
			mfa_pending_secret = '', updated_at = ?
		WHERE id = ? AND mfa_pending_secret != ''`,
		time.Now().Unix(), userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET mfa_enabled = 0, mfa_secret = '',
			mfa_pending_secret = '', updated_at = ?
		WHERE id = ?`,
		time.Now().Unix(), userID)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

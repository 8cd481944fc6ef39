package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/htvo/oauth2d/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, name, secret_hash, redirect_uris, scopes, grant_types,
	enabled, access_token_ttl, refresh_token_ttl, created_at, updated_at`

func scanClient(row *sql.Row) (domain.Client, error) {
	var (
		c            domain.Client
		redirectURIs string
		scopes       string
		grantTypes   string
		enabled      int64
		accessTTL    int64
		refreshTTL   int64
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.SecretHash, &redirectURIs, &scopes,
		&grantTypes, &enabled, &accessTTL, &refreshTTL, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	c.RedirectURIs = splitScopes(redirectURIs)
	c.Scopes = splitScopes(scopes)
	c.GrantTypes = splitScopes(grantTypes)
	c.Enabled = enabled != 0
	c.AccessTokenTTL = time.Duration(accessTTL) * time.Second
	c.RefreshTokenTTL = time.Duration(refreshTTL) * time.Second
	c.CreatedAt = fromUnix(createdAt)
	c.UpdatedAt = fromUnix(updatedAt)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, secret_hash, redirect_uris, scopes,
			grant_types, enabled, access_token_ttl, refresh_token_ttl,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.SecretHash, joinScopes(c.RedirectURIs),
		joinScopes(c.Scopes), joinScopes(c.GrantTypes), boolInt(c.Enabled),
		int64(c.AccessTokenTTL/time.Second), int64(c.RefreshTokenTTL/time.Second),
		now, now)
	return err
}

func (r *clientsRepo) UpdateClientSecretHash(ctx context.Context, clientID, secretHash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clients SET secret_hash = ?, updated_at = ? WHERE id = ?`,
		secretHash, time.Now().Unix(), clientID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *clientsRepo) DeleteClient(ctx context.Context, clientID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, clientID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

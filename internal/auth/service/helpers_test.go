package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htvo/oauth2d/internal/auth/domain"
	"github.com/htvo/oauth2d/internal/auth/kv"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/internal/auth/store/drivers/sqlite"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/idx"
	"github.com/htvo/oauth2d/pkg/jwtx"
)

const (
	testPassword     = "correct horse battery staple"
	testClientSecret = "s3cret-client-secret"
)

type testEnv struct {
	Store   store.Store
	KV      *kv.Memory
	Codes   *CodeService
	Tokens  *TokenService
	MFA     *MFAService
	Limiter *RateLimiter
	Auth    *AuthService

	User   domain.User
	Client domain.Client
	Public domain.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mem := kv.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	signer, err := jwtx.NewSigner(jwtx.AlgorithmES256, "https://auth.test")
	require.NoError(t, err)

	passwordHash, err := cryptox.HashSecret(testPassword)
	require.NoError(t, err)
	secretHash, err := cryptox.HashSecret(testClientSecret)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New(),
		Username:     "alice",
		Email:        "alice@example.test",
		PasswordHash: passwordHash,
		Enabled:      true,
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))

	confidential := domain.Client{
		ID:           idx.New(),
		Name:         "backend",
		SecretHash:   secretHash,
		RedirectURIs: []string{"https://app.test/cb"},
		Scopes:       []string{"read", "write"},
		GrantTypes: []string{
			domain.GrantAuthorizationCode,
			domain.GrantRefreshToken,
			domain.GrantClientCredentials,
			domain.GrantPassword,
		},
		Enabled: true,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, confidential))

	public := domain.Client{
		ID:           idx.New(),
		Name:         "spa",
		RedirectURIs: []string{"https://spa.test/cb"},
		Scopes:       []string{"read"},
		GrantTypes:   []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken, domain.GrantPassword},
		Enabled:      true,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, public))

	tokens := &TokenService{
		Store:      st,
		Signer:     signer,
		Issuer:     "https://auth.test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	codes := &CodeService{Store: st}
	mfa := &MFAService{Store: st, KV: mem, Issuer: "auth.test"}
	limiter := NewRateLimiter(NewMemoryBucketStore(), DefaultRatePolicies())

	return &testEnv{
		Store:   st,
		KV:      mem,
		Codes:   codes,
		Tokens:  tokens,
		MFA:     mfa,
		Limiter: limiter,
		Auth: &AuthService{
			Store:   st,
			Tokens:  tokens,
			Codes:   codes,
			MFA:     mfa,
			Limiter: limiter,
		},
		User:   user,
		Client: confidential,
		Public: public,
	}
}

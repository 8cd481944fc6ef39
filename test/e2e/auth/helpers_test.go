package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htvo/oauth2d/internal/auth/domain"
	httpapi "github.com/htvo/oauth2d/internal/auth/http"
	"github.com/htvo/oauth2d/internal/auth/kv"
	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/internal/auth/store/drivers/sqlite"
	"github.com/htvo/oauth2d/pkg/authsdk"
	"github.com/htvo/oauth2d/pkg/cryptox"
	"github.com/htvo/oauth2d/pkg/idx"
	"github.com/htvo/oauth2d/pkg/jwtx"
	"github.com/htvo/oauth2d/pkg/slogx"
)

const (
	e2eIssuer       = "https://auth.e2e.test"
	e2ePassword     = "correct horse battery staple"
	e2eClientSecret = "s3cret-client-secret"
	e2eRedirectURI  = "https://app.test/cb"
)

type env struct {
	BaseURL string
	SDK     *authsdk.Client
	Store   store.Store

	User   domain.User
	Client domain.Client
	Public domain.Client
}

// newEnv boots the full HTTP stack on an in-process listener backed by
// a throwaway SQLite file and seeds one user plus two clients.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mem := kv.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })

	signer, err := jwtx.NewSigner(jwtx.AlgorithmES256, e2eIssuer)
	require.NoError(t, err)

	passwordHash, err := cryptox.HashSecret(e2ePassword)
	require.NoError(t, err)
	secretHash, err := cryptox.HashSecret(e2eClientSecret)
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
		RedirectURIs: []string{e2eRedirectURI},
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
		GrantTypes:   []string{domain.GrantAuthorizationCode, domain.GrantRefreshToken},
		Enabled:      true,
	}
	require.NoError(t, st.Clients().CreateClient(ctx, public))

	tokens := &service.TokenService{
		Store:      st,
		Signer:     signer,
		Issuer:     e2eIssuer,
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
	codes := &service.CodeService{Store: st}
	mfa := &service.MFAService{Store: st, KV: mem, Issuer: "auth.e2e.test"}
	limiter := service.NewRateLimiter(service.NewMemoryBucketStore(), service.DefaultRatePolicies())
	auth := &service.AuthService{
		Store:   st,
		Tokens:  tokens,
		Codes:   codes,
		MFA:     mfa,
		Limiter: limiter,
	}

	logger := slogx.New(slogx.Config{Service: "oauth2d", Level: "error", Format: "text"})

	router := httpapi.NewRouter(signer, "e2e", st, mem, logger)
	router.AuthService = auth
	router.TokenService = tokens
	router.CodeService = codes
	router.MFAService = mfa
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &env{
		BaseURL: srv.URL,
		SDK:     authsdk.NewClient(srv.URL),
		Store:   st,
		User:    user,
		Client:  confidential,
		Public:  public,
	}
}

func s256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

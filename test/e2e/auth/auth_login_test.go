package auth_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/htvo/oauth2d/pkg/authsdk"
)

func TestLoginAndIntrospect(t *testing.T) {
	e := newEnv(t)

	tokens, err := e.SDK.Login(t.Context(), "alice", e2ePassword, e.Client.ID, []string{"read"})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, "Bearer", tokens.TokenType)

	info, err := e.SDK.Introspect(t.Context(), e.Client.ID, e2eClientSecret, tokens.AccessToken)
	require.NoError(t, err)
	require.True(t, info.Active)
	require.Equal(t, e.User.ID, info.Sub)
	require.Equal(t, "alice", info.Username)
	require.Equal(t, e.Client.ID, info.ClientID)
	require.Equal(t, "read", info.Scope)
}

func TestLoginWrongPassword(t *testing.T) {
	e := newEnv(t)

	_, err := e.SDK.Login(t.Context(), "alice", "not-the-password", e.Client.ID, nil)

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	require.Equal(t, "invalid_grant", apiErr.Code)
}

func TestLoginBudgetExhausted(t *testing.T) {
	e := newEnv(t)

	for range 5 {
		_, err := e.SDK.Login(t.Context(), "alice", "not-the-password", e.Client.ID, nil)
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "invalid_grant", apiErr.Code)
	}

	// Sixth attempt hits the per-username budget, even with the right
	// password.
	_, err := e.SDK.Login(t.Context(), "alice", e2ePassword, e.Client.ID, nil)
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "rate_limit_exceeded", apiErr.Code)
}

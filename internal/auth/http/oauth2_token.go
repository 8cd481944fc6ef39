package http

import (
	"net/http"
	"strings"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// TokenHandler serves POST /v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per RFC 6749.
type TokenHandler struct {
	Auth *service.AuthService
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("content type must be application/x-www-form-urlencoded"))
		return
	}
	if !requireForm(w, r) {
		return
	}

	clientID, clientSecret := clientCredentials(r)

	pair, err := h.Auth.ExchangeToken(r.Context(), service.TokenRequest{
		GrantType:    r.Form.Get("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         strings.TrimSpace(r.Form.Get("code")),
		RedirectURI:  strings.TrimSpace(r.Form.Get("redirect_uri")),
		CodeVerifier: strings.TrimSpace(r.Form.Get("code_verifier")),
		RefreshToken: r.Form.Get("refresh_token"),
		Username:     strings.TrimSpace(r.Form.Get("username")),
		Password:     r.Form.Get("password"),
		Scopes:       httpx.SplitScopes(r.Form.Get("scope")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}

// clientCredentials reads client auth from HTTP Basic, falling back to
// the form fields.
func clientCredentials(r *http.Request) (clientID, clientSecret string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return strings.TrimSpace(r.Form.Get("client_id")), r.Form.Get("client_secret")
}

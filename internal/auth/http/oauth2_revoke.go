package http

import (
	"net/http"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// RevokeHandler serves POST /v1/oauth2/revoke per RFC 7009.
// Revoking a token the server does not recognise still returns 200 so
// callers learn nothing about token existence.
type RevokeHandler struct {
	Auth   *service.AuthService
	Tokens *service.TokenService
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireForm(w, r) {
		return
	}

	clientID, clientSecret := clientCredentials(r)
	if _, err := h.Auth.AuthenticateClient(r.Context(), clientID, clientSecret); err != nil {
		writeServiceError(w, r, err)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("token is required"))
		return
	}

	if err := h.Tokens.Revoke(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

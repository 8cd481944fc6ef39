package http

import (
	"net/http"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// IntrospectHandler serves POST /v1/oauth2/introspect per RFC 7662.
// Callers authenticate as a registered client; unknown or inactive
// tokens come back as {"active": false} rather than an error.
type IntrospectHandler struct {
	Auth   *service.AuthService
	Tokens *service.TokenService
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	info, err := h.Tokens.Introspect(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, info)
}

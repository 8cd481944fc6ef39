package http

import (
	"encoding/json"
	"net/http"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// LoginHandler serves POST /v1/auth/login, the first party password
// login. A JSON body keeps it convenient for browser frontends.
type LoginHandler struct {
	Auth *service.AuthService
}

type loginBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

type mfaChallengeBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	MFAToken         string `json:"mfa_token"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("malformed json body"))
		return
	}
	if body.Username == "" || body.Password == "" || body.ClientID == "" {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("username, password and client_id are required"))
		return
	}

	outcome, err := h.Auth.Login(r.Context(), service.LoginRequest{
		Username: body.Username,
		Password: body.Password,
		ClientID: body.ClientID,
		Scopes:   httpx.SplitScopes(body.Scope),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeLoginOutcome(w, r, outcome)
}

func writeLoginOutcome(w http.ResponseWriter, r *http.Request, outcome service.LoginOutcome) {
	switch outcome.Status {
	case service.LoginSucceeded:
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusOK, outcome.Tokens)
	case service.LoginMFARequired:
		httpx.NoCache(w)
		httpx.WriteJSON(w, http.StatusUnauthorized, mfaChallengeBody{
			Error:            service.ErrMFARequired.Code,
			ErrorDescription: service.ErrMFARequired.Description,
			MFAToken:         outcome.MFAToken,
		})
	default:
		writeServiceError(w, r, outcome.Err)
	}
}

package http

import (
	"encoding/json"
	"net/http"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// MFAVerifyHandler serves POST /v1/auth/mfa/verify. It completes a
// pending login challenge, so it is reachable without a bearer token.
type MFAVerifyHandler struct {
	Auth *service.AuthService
}

type mfaVerifyBody struct {
	MFAToken string `json:"mfa_token"`
	Code     string `json:"code"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

func (h *MFAVerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body mfaVerifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("malformed json body"))
		return
	}
	if body.MFAToken == "" || body.Code == "" || body.ClientID == "" {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("mfa_token, code and client_id are required"))
		return
	}

	pair, err := h.Auth.VerifyMFA(r.Context(), service.VerifyMFARequest{
		ChallengeToken: body.MFAToken,
		Code:           body.Code,
		ClientID:       body.ClientID,
		Scopes:         httpx.SplitScopes(body.Scope),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// MFAManageHandler serves the enrollment endpoints for the user behind
// the bearer token: setup, enable and disable.
type MFAManageHandler struct {
	MFA *service.MFAService
}

type mfaEnableBody struct {
	Code string `json:"code"`
}

func (h *MFAManageHandler) Setup(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		writeServiceError(w, r, service.ErrTokenInvalid)
		return
	}

	enrollment, err := h.MFA.Setup(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"secret": enrollment.Secret,
		"url":    enrollment.URL,
	})
}

func (h *MFAManageHandler) Enable(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		writeServiceError(w, r, service.ErrTokenInvalid)
		return
	}

	var body mfaEnableBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("malformed json body"))
		return
	}
	if body.Code == "" {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("code is required"))
		return
	}

	if err := h.MFA.Enable(r.Context(), userID, body.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

func (h *MFAManageHandler) Disable(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		writeServiceError(w, r, service.ErrTokenInvalid)
		return
	}

	if err := h.MFA.Disable(r.Context(), userID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// AuthorizeHandler serves GET /v1/oauth2/authorize for already
// authenticated users. The resource owner is taken from the bearer
// token on the request, so this sits behind the authn middleware.
type AuthorizeHandler struct {
	Codes *service.CodeService
}

func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	clientID := strings.TrimSpace(q.Get("client_id"))
	redirectURI := strings.TrimSpace(q.Get("redirect_uri"))
	state := q.Get("state")

	// Errors may only travel back via redirect once the client and
	// redirect URI hold up. Anything before that is answered in place
	// to avoid an open redirector.
	if err := h.Codes.CheckRedirect(r.Context(), clientID, redirectURI); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if rt := q.Get("response_type"); rt != "code" {
		redirectError(w, r, redirectURI, state, service.ErrUnsupportedResponseType)
		return
	}

	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		writeServiceError(w, r, service.ErrTokenInvalid)
		return
	}

	code, _, err := h.Codes.Issue(r.Context(), service.AuthorizeRequest{
		ClientID:            clientID,
		UserID:              userID,
		RedirectURI:         redirectURI,
		Scopes:              httpx.SplitScopes(q.Get("scope")),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	})
	if err != nil {
		svcErr, ok := service.AsError(err)
		if !ok || svcErr.Kind == service.KindInvalidClient || svcErr.Kind == service.KindInvalidRedirectURI {
			writeServiceError(w, r, err)
			return
		}
		redirectError(w, r, redirectURI, state, svcErr)
		return
	}

	dest, _ := url.Parse(redirectURI)
	v := dest.Query()
	v.Set("code", code)
	if state != "" {
		v.Set("state", state)
	}
	dest.RawQuery = v.Encode()

	httpx.NoCache(w)
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

// redirectError sends the error back to the registered redirect URI
// per RFC 6749 section 4.1.2.1.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state string, svcErr *service.Error) {
	dest, err := url.Parse(redirectURI)
	if err != nil {
		writeServiceError(w, r, service.ErrInvalidRedirectURI)
		return
	}

	v := dest.Query()
	v.Set("error", svcErr.Code)
	if svcErr.Description != "" {
		v.Set("error_description", svcErr.Description)
	}
	if state != "" {
		v.Set("state", state)
	}
	dest.RawQuery = v.Encode()

	httpx.NoCache(w)
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

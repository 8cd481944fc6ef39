package http

import (
	"fmt"
	"net/http"

	"github.com/htvo/oauth2d/internal/auth/service"
	"github.com/htvo/oauth2d/pkg/httpx"
	"github.com/htvo/oauth2d/pkg/slogx"
)

// writeServiceError translates a service error into an RFC 6749 style
// error body. Anything that is not a *service.Error is an internal
// fault: logged in full, surfaced as an opaque server_error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		slogx.FromContext(r.Context()).Error("request failed", "err", err)
		svcErr = service.ErrServer
	}

	body := map[string]any{
		"error":             svcErr.Code,
		"error_description": svcErr.Description,
	}
	for k, v := range svcErr.Meta {
		body[k] = v
	}

	if retry, ok := svcErr.Meta["retry_after"]; ok {
		w.Header().Set("Retry-After", fmt.Sprint(retry))
	}

	httpx.WriteJSON(w, svcErr.Status, body)
}

func requireForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		writeServiceError(w, r, service.ErrInvalidRequest.WithDescription("malformed form body"))
		return false
	}
	return true
}

package http

import (
	"net/http"
	"time"

	"github.com/htvo/oauth2d/pkg/authsdk"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// LivezHandler answers the liveness probe. Always 200 while the
// process runs.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

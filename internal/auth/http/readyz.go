package http

import (
	"net/http"
	"time"

	"github.com/htvo/oauth2d/internal/auth/kv"
	"github.com/htvo/oauth2d/internal/auth/store"
	"github.com/htvo/oauth2d/pkg/authsdk"
	"github.com/htvo/oauth2d/pkg/httpx"
)

// ReadyzHandler answers the readiness probe, checking the database and
// the ephemeral store on every call.
func ReadyzHandler(startTime time.Time, version string, st store.Store, cache kv.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{Database: "ok", Cache: "ok"}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if err := cache.Ping(r.Context()); err != nil {
			checks.Cache = "error: " + err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// Package httpx holds transport-level helpers shared by the HTTP handlers:
// JSON responses, middleware chaining, bearer authentication, and per-IP
// request limiting.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WriteJSON writes v as a JSON response with the given status. Token-bearing
// responses must not be cached, so every JSON response carries no-store.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NoCache sets Cache-Control/Pragma per RFC 6749 §5.1.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// SplitScopes parses a space-delimited scope string. Returns nil for empty
// input.
func SplitScopes(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

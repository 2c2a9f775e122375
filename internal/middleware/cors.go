package middleware

import (
	"net/http"
	"strings"
)

// Extension origins and any http/https origin are echoed back with
// credentials allowed; anything else (curl, server-to-server) falls through
// to a wildcard, non-credentialed response.
func originAllowed(origin string) bool {
	return strings.HasPrefix(origin, "chrome-extension://") ||
		strings.HasPrefix(origin, "moz-extension://") ||
		strings.HasPrefix(origin, "safari-web-extension://") ||
		strings.HasPrefix(origin, "http://") ||
		strings.HasPrefix(origin, "https://")
}

// CORS handles cross-origin headers and short-circuits preflight requests
// with 204. allowMethods is per-mount: the API default is "GET,OPTIONS",
// the ingestion route additionally allows POST.
func CORS(allowMethods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if origin != "" && originAllowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

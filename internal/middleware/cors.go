package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins, a comma-separated list or "*".
// The API is read-only, so only GET and OPTIONS are advertised.
func CORS(origins string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := allowOrigin(r.Header.Get("Origin"), allowed); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowOrigin(reqOrigin string, allowed map[string]bool) string {
	if allowed["*"] {
		return "*"
	}
	if reqOrigin != "" && allowed[reqOrigin] {
		return reqOrigin
	}
	return ""
}

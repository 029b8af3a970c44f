package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl marks anonymous GET responses as publicly cacheable for
// maxAge seconds. Authenticated responses are never marked public.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	public := fmt.Sprintf("public, max-age=%d", maxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				if r.Header.Get("Authorization") == "" {
					w.Header().Set("Cache-Control", public)
				} else {
					w.Header().Set("Cache-Control", "private, no-store")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

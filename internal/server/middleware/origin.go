package middleware

import (
	"net/http"
	"strings"
)

// RejectCrossOrigin refuses browser requests coming from a page that is not
// in allowed. Requests without an Origin header (deskctl, curl) pass.
func RejectCrossOrigin(allowed []string) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(strings.ToLower(o), "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && !origins[strings.ToLower(origin)] {
				http.Error(w, "Cross-origin request rejected", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

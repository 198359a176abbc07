package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// Inspect scans every request for XSS, SQL injection and CSRF indicators and
// records a HIGH incident per attack class. The request always proceeds.
func Inspect(engine *goGuard.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine != nil {
				engine.InspectRequest(r.Context(), r, ClientIP(r))
			}
			next.ServeHTTP(w, r)
		})
	}
}

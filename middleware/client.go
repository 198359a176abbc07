package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

type clientIPKey struct{}

// ClientIP returns the address ClientInfo resolved for r. Without ClientInfo
// it is the remote address without its port; X-Forwarded-For is not read
// here, so a client cannot choose its own address.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return remoteIP(r)
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func forwardedIP(r *http.Request) string {
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	return strings.TrimSpace(first)
}

// ClientInfo resolves the client IP and attaches it, the user agent and the
// request line to the request context. With trustForwarded the first
// X-Forwarded-For hop wins over the remote address; enable it only behind a
// proxy that overwrites that header.
func ClientInfo(trustForwarded bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if trustForwarded {
				ip = forwardedIP(r)
			}
			if ip == "" {
				ip = remoteIP(r)
			}
			ctx := context.WithValue(r.Context(), clientIPKey{}, ip)
			ctx = goGuard.WithClientIP(ctx, ip)
			ctx = goGuard.WithUserAgent(ctx, r.UserAgent())
			ctx = goGuard.WithRequestLine(ctx, r.Method, r.URL.RequestURI())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

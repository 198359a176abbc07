package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
)

const (
	defaultAccessCookie = "admin_access_token"
	defaultAccessTTL    = time.Hour
	accessSubject       = "admin-gate"
	maxAccessBodyBytes  = 4 << 10
)

// GateConfig configures AccessGate. The zero value guards nothing.
type GateConfig struct {
	// PathPrefix is the admin prefix the gate applies to, e.g. "/admin".
	PathPrefix string
	// AllowedIPs, when non-empty, is the only set of clients let through.
	AllowedIPs []string
	// AccessPassword, when set, must be exchanged at {PathPrefix}/verify-access
	// for a cookie before any other admin path is served.
	AccessPassword string
	// PublicPaths bypass the gate entirely.
	PublicPaths []string
	CookieName  string
	TTL         time.Duration
	// SecureCookie sets the Secure attribute on the access cookie.
	SecureCookie bool
}

// AccessGate guards cfg.PathPrefix with an IP allowlist (403) and an
// optional access password (401). The access cookie is a signed token bound
// to the admin-access purpose.
func AccessGate(engine *goGuard.Engine, cfg GateConfig) Middleware {
	if cfg.CookieName == "" {
		cfg.CookieName = defaultAccessCookie
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultAccessTTL
	}
	prefix := strings.TrimRight(cfg.PathPrefix, "/")
	verifyPath := prefix + "/verify-access"
	allowed := make(map[string]struct{}, len(cfg.AllowedIPs))
	for _, ip := range cfg.AllowedIPs {
		allowed[strings.TrimSpace(ip)] = struct{}{}
	}
	public := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = struct{}{}
	}

	var signer *jwt.Manager
	if engine != nil {
		signer = engine.PendingTokens()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if prefix == "" || !underPrefix(path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := public[path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if len(allowed) > 0 {
				if _, ok := allowed[ClientIP(r)]; !ok {
					writeJSON(w, http.StatusForbidden, envelope{Code: 1, Msg: "Access denied: IP not allowed"})
					return
				}
			}

			if cfg.AccessPassword == "" {
				next.ServeHTTP(w, r)
				return
			}
			if signer == nil {
				writeJSON(w, http.StatusServiceUnavailable, envelope{Code: 1, Msg: "service unavailable"})
				return
			}

			if c, err := r.Cookie(cfg.CookieName); err == nil && c.Value != "" {
				if _, err := signer.Parse(c.Value, jwt.PurposeAdminAccess); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}

			if path == verifyPath && r.Method == http.MethodPost {
				pw := accessPassword(r)
				if subtle.ConstantTimeCompare([]byte(pw), []byte(cfg.AccessPassword)) != 1 {
					writeJSON(w, http.StatusUnauthorized, envelope{Code: 1, Msg: "Invalid access password"})
					return
				}
				token, err := signer.Issue(jwt.PurposeAdminAccess, accessSubject, "password", cfg.TTL)
				if err != nil {
					writeJSON(w, http.StatusInternalServerError, envelope{Code: 1, Msg: "internal server error"})
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(cfg.TTL / time.Second),
					HttpOnly: true,
					Secure:   cfg.SecureCookie || r.TLS != nil,
					SameSite: http.SameSiteStrictMode,
				})
				writeJSON(w, http.StatusOK, envelope{Code: 0, Msg: "Access granted"})
				return
			}

			writeJSON(w, http.StatusUnauthorized, envelope{
				Code:       1,
				Msg:        "Access password required",
				RedirectTo: prefix + "/access-verify",
			})
		})
	}
}

func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// accessPassword reads "password" from a form or a JSON object body.
func accessPassword(r *http.Request) string {
	r.Body = http.MaxBytesReader(nil, r.Body, maxAccessBodyBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return body.Password
	}
	return r.PostFormValue("password")
}

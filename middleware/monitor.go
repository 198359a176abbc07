package middleware

import (
	"fmt"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

// MonitorConfig selects the paths MonitorResponses treats specially.
type MonitorConfig struct {
	// LoginPath is the login endpoint. A POST to it records LOGIN_SUCCESS or
	// LOGIN_FAILURE instead of the status-code rules.
	LoginPath string
	// SensitivePrefixes mark admin paths whose successful POST, PUT and
	// DELETE requests are recorded as MEDIUM suspicious activity.
	SensitivePrefixes []string
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// MonitorResponses records incidents from the response of every request:
//
//   - login POST: LOGIN_SUCCESS (LOW) on 200, LOGIN_FAILURE (MEDIUM) otherwise
//   - 401 or 403: PERMISSION_DENIED (HIGH)
//   - 5xx: SUSPICIOUS_ACTIVITY (HIGH)
//   - a panic: SUSPICIOUS_ACTIVITY (CRITICAL), answered with 500
//   - successful writes under a sensitive prefix: SUSPICIOUS_ACTIVITY (MEDIUM)
func MonitorResponses(engine *goGuard.Engine, cfg MonitorConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			rec := newStatusRecorder(w)
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					record(engine, r, goGuard.IncidentSuspiciousActivity, goGuard.SeverityCritical,
						fmt.Sprintf("Exception: %s %s - %v", r.Method, r.URL.Path, v), http.StatusInternalServerError)
					if !rec.wroteHeader {
						writeJSON(rec, http.StatusInternalServerError, envelope{Code: 1, Msg: "internal server error"})
					}
				}
			}()

			next.ServeHTTP(rec, r)
			classify(engine, cfg, r, rec.status)
		})
	}
}

func classify(engine *goGuard.Engine, cfg MonitorConfig, r *http.Request, status int) {
	line := r.Method + " " + r.URL.Path

	if cfg.LoginPath != "" && r.URL.Path == cfg.LoginPath && r.Method == http.MethodPost {
		if status == http.StatusOK {
			record(engine, r, goGuard.IncidentLoginSuccess, goGuard.SeverityLow, "Login success: "+line, status)
		} else {
			record(engine, r, goGuard.IncidentLoginFailure, goGuard.SeverityMedium,
				fmt.Sprintf("Login failed: %s - Status: %d", line, status), status)
		}
		return
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		record(engine, r, goGuard.IncidentPermissionDenied, goGuard.SeverityHigh, "Permission denied: "+line, status)
	case status >= http.StatusInternalServerError:
		record(engine, r, goGuard.IncidentSuspiciousActivity, goGuard.SeverityHigh,
			fmt.Sprintf("Server error: %s - Status: %d", line, status), status)
	case status < http.StatusBadRequest && isWrite(r.Method) && hasAnyPrefix(r.URL.Path, cfg.SensitivePrefixes):
		record(engine, r, goGuard.IncidentSuspiciousActivity, goGuard.SeverityMedium, "Sensitive operation: "+line, status)
	}
}

// Monitor wraps a single handler. A 200 response records typ at sev as
// "Success: METHOD path"; any other status records typ at MEDIUM. A panic is
// recorded at CRITICAL and re-raised.
func Monitor(engine *goGuard.Engine, typ goGuard.IncidentType, sev goGuard.Severity) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}
			rec := newStatusRecorder(w)
			defer func() {
				if v := recover(); v != nil {
					record(engine, r, typ, goGuard.SeverityCritical,
						fmt.Sprintf("Exception: %s %s - %v", r.Method, r.URL.Path, v), http.StatusInternalServerError)
					panic(v)
				}
			}()

			next.ServeHTTP(rec, r)
			line := r.Method + " " + r.URL.Path
			if rec.status == http.StatusOK {
				record(engine, r, typ, sev, "Success: "+line, rec.status)
				return
			}
			record(engine, r, typ, goGuard.SeverityMedium, fmt.Sprintf("Failed: %s - Status: %d", line, rec.status), rec.status)
		})
	}
}

func record(engine *goGuard.Engine, r *http.Request, typ goGuard.IncidentType, sev goGuard.Severity, desc string, status int) {
	actor := actorFromContext(r.Context())
	engine.Record(r.Context(), goGuard.Incident{
		Type:        typ,
		Severity:    sev,
		Description: desc,
		AccountID:   actor.AccountID,
		Username:    actor.Username,
		IP:          ClientIP(r),
		UserAgent:   r.UserAgent(),
		Method:      r.Method,
		URL:         r.URL.RequestURI(),
		Status:      status,
	})
}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodDelete
}

// hasAnyPrefix matches whole path segments: "/admin" covers "/admin/x" but
// not "/administrator".
func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && underPrefix(path, strings.TrimRight(p, "/")) {
			return true
		}
	}
	return false
}

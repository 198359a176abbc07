package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
)

// Options configures NewRouter.
type Options struct {
	Engine *goGuard.Engine
	// Prefix mounts the admin API, e.g. "/admin".
	Prefix      string
	CORSOrigins []string
	// LoginPerHour caps login attempts per client IP. Zero disables the limit.
	LoginPerHour int
	// TrustForwardedIP keeps X-Forwarded-For; otherwise it is stripped before
	// the client IP is resolved.
	TrustForwardedIP bool

	Gate              middleware.GateConfig
	Monitor           bool
	SensitivePrefixes []string

	// Metrics, when set, is served at MetricsPath outside the admin prefix.
	Metrics     http.Handler
	MetricsPath string

	Logger zerolog.Logger
}

type api struct {
	engine *goGuard.Engine
	logger zerolog.Logger
}

// NewRouter builds the HTTP handler for the admin API.
func NewRouter(opts Options) http.Handler {
	a := &api{engine: opts.Engine, logger: opts.Logger}
	prefix := "/" + strings.Trim(opts.Prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", middleware.TokenHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if !opts.TrustForwardedIP {
		r.Use(stripForwarded)
	}

	var monitor middleware.Middleware
	if opts.Monitor {
		monitor = middleware.MonitorResponses(opts.Engine, middleware.MonitorConfig{
			LoginPath:         prefix + "/login",
			SensitivePrefixes: opts.SensitivePrefixes,
		})
	}
	var gate middleware.Middleware
	if opts.Gate.PathPrefix != "" {
		gate = middleware.AccessGate(opts.Engine, opts.Gate)
	}
	r.Use(middleware.Chain(
		middleware.ClientInfo(opts.TrustForwardedIP),
		gate,
		middleware.Inspect(opts.Engine),
		middleware.Authenticate(opts.Engine),
		monitor,
	))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, "ok", nil)
	})
	if opts.Metrics != nil && opts.MetricsPath != "" {
		r.Method(http.MethodGet, opts.MetricsPath, opts.Metrics)
	}

	routes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.LoginPerHour > 0 {
				r.Use(httprate.Limit(opts.LoginPerHour, time.Hour,
					httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
						return middleware.ClientIP(r), nil
					}),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						fail(w, http.StatusTooManyRequests, "too many login attempts, try again later")
					}),
				))
			}
			r.Post("/login", a.login)
			r.Post("/login/verify", a.loginVerify)
			r.Post("/password/expired", a.changeExpiredPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated())

			r.Get("/me", a.me)
			r.Post("/password", a.changePassword)
			r.Get("/password/policy", a.passwordPolicy)

			r.Route("/two-factor", func(r chi.Router) {
				r.Get("/", a.twoFactorStatus)
				r.Post("/send", a.twoFactorSend)
				r.Post("/verify", a.twoFactorVerify)
				r.Post("/enable", a.twoFactorEnable)
				r.Post("/disable", a.twoFactorDisable)
			})

			r.Get("/security/overview", a.securityOverview)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", a.listDevices)
				r.Delete("/{deviceID}", a.revokeDevice)
				r.Put("/{deviceID}/trust", a.trustDevice)
			})

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", a.listIncidents)
				r.Get("/stats", a.incidentStats)
				r.Get("/report", a.incidentReport)
				r.Post("/drill", a.runDrill)
				r.Post("/{incidentID}/resolve", a.resolveIncident)
			})

			r.Route("/users", func(r chi.Router) {
				r.Post("/", a.createAccount)
				r.Delete("/{accountID}", a.deleteAccount)
			})
		})
	}
	if prefix == "" {
		routes(r)
	} else {
		r.Route(prefix, routes)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func stripForwarded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del("X-Forwarded-For")
		next.ServeHTTP(w, r)
	})
}

// current returns the authenticated account. RequireAuthenticated guarantees
// it is present on every route that calls this.
func current(r *http.Request) *goGuard.Account {
	acct, _ := middleware.AccountFromContext(r.Context())
	return acct
}

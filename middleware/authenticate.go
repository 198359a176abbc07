package middleware

import (
	"context"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

// TokenHeader carries the opaque session token.
const TokenHeader = "ADMINTOKEN"

type outcomeContextKey struct{}

// OutcomeFromContext returns the outcome stored by Authenticate.
func OutcomeFromContext(ctx context.Context) (goGuard.AuthOutcome, bool) {
	out, ok := ctx.Value(outcomeContextKey{}).(goGuard.AuthOutcome)
	return out, ok
}

// AccountFromContext returns the authenticated account, if any.
func AccountFromContext(ctx context.Context) (*goGuard.Account, bool) {
	out, ok := OutcomeFromContext(ctx)
	if !ok || out.Kind != goGuard.Authenticated || out.Account == nil {
		return nil, false
	}
	return out.Account, true
}

// actorFromContext names the authenticated account for incident records.
func actorFromContext(ctx context.Context) goGuard.Actor {
	if a, ok := AccountFromContext(ctx); ok {
		return goGuard.Actor{AccountID: a.ID, Username: a.Username}
	}
	return goGuard.Actor{}
}

// Authenticate resolves the session token and stores the outcome in the
// request context. It never rejects; pair it with RequireAuthenticated on
// protected routes. A store failure answers 503.
func Authenticate(engine *goGuard.Engine) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeJSON(w, http.StatusServiceUnavailable, envelope{Code: 1, Msg: "service unavailable"})
				return
			}

			out, err := engine.Authenticate(r.Context(), requestToken(r))
			if err != nil {
				engine.Logger().Error().Err(err).Msg("token verification failed")
				writeJSON(w, http.StatusServiceUnavailable, envelope{Code: 1, Msg: "service unavailable"})
				return
			}

			ctx := context.WithValue(r.Context(), outcomeContextKey{}, out)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated answers 401 unless Authenticate resolved the request
// to an account.
func RequireAuthenticated() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out, _ := OutcomeFromContext(r.Context())
			switch out.Kind {
			case goGuard.Authenticated:
				next.ServeHTTP(w, r)
			case goGuard.Rejected:
				writeJSON(w, http.StatusUnauthorized, envelope{Code: 1, Msg: rejectMessage(out.Reason)})
			default:
				writeJSON(w, http.StatusUnauthorized, envelope{Code: 1, Msg: "authentication required"})
			}
		})
	}
}

func rejectMessage(reason goGuard.RejectReason) string {
	switch reason {
	case goGuard.ReasonExpired:
		return "token expired"
	case goGuard.ReasonMalformed:
		return "invalid token expiry"
	default:
		return "invalid token"
	}
}

func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	token, _ := bearerToken(r.Header.Get("Authorization"))
	return token
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

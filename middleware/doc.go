// Package middleware exposes net/http middleware that puts a goGuard.Engine
// in front of an admin backend.
//
// # Middleware
//
//   - [ClientInfo] attaches the client IP, user agent and request line to the
//     request context so incidents and audit events can record them.
//   - [Authenticate] resolves the ADMINTOKEN header and stores the outcome.
//   - [RequireAuthenticated] rejects requests whose outcome is not Authenticated.
//   - [Inspect] scans requests for XSS, SQL injection and CSRF indicators.
//   - [MonitorResponses] records incidents from response status codes and panics.
//   - [Monitor] wraps a single handler and records its outcome.
//   - [AccessGate] guards the admin path prefix with an IP allowlist and an
//     optional access password.
//
// Compose them with [Chain]; the first middleware is the outermost.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Credential,
// incident and alerting decisions stay in the Engine.
package middleware

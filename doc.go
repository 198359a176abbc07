// Package goGuard is the security core of an administrative web backend:
// session-token authentication, account lockout, the password lifecycle,
// emailed two-factor codes, trusted-device tracking, request threat
// inspection and incident response.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config],
// the domain records and the [Store] interface that a durable backend
// implements (see store/postgres). Two-factor challenges, attempt counters,
// lockout transitions and audit dispatch live under internal/ and are never
// exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports goGuard (no import cycles).
//   - Let incident recording or alerting fail the request that triggered it.
//
// # Concurrency contract
//
// Every login mutation runs inside one row-locked store transaction, so
// concurrent attempts for the same account serialize on the failure counter
// and the session token. Authenticate is read-only and never mutates an
// account, whatever its outcome.
package goGuard

// Package internal holds helpers private to goGuard: one-time code and
// session token generation, plus device fingerprinting.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: layered service configuration
//   - httpapi: the HTTP surface of cmd/goguard-server
//   - limiters: Redis counters for two-factor verification attempts
//   - lockout: the account lockout state machine
//   - logging: zerolog construction
//   - memstore: the in-memory goGuard.Store
//   - stores: Redis TTL records for two-factor challenges
//
// Nothing here is part of the public goGuard API.
package internal

// Package stores provides the Redis-backed TTL record for pending
// two-factor codes.
//
// # Design
//
// A challenge is a versioned, binary-encoded record stored with a TTL so
// expiry happens server-side. A missing record and an expired one are the
// same thing to callers. Records are deleted on successful verification.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Log or expose plaintext codes.
//   - Count failed attempts. That belongs to internal/limiters.
package stores

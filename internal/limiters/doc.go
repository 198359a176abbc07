// Package limiters provides Redis attempt counters.
//
// # Limiters
//
//   - [TwoFactorLimiter]: per-account, per-method failure counter for
//     verification codes, with a sliding lock window.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters

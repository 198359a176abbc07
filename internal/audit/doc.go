// Package audit relays security events (logins, lockouts, 2FA changes,
// device and incident updates) from the Engine to a pluggable [Sink].
//
// A [Dispatcher] owns a bounded queue and a single delivery goroutine.
// With DropIfFull set, Emit never waits on a slow sink; the overflow is
// counted and reported through OnDrop. Close flushes whatever is queued.
//
// The Engine decides which events exist. This package only carries them and
// must not import goGuard or its sibling internal packages.
package audit

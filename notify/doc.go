// Package notify delivers security notifications (verification codes and
// incident alerts) over SMTP, guarded by a circuit breaker.
package notify

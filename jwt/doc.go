// Package jwt issues and verifies short-lived signed tokens that never act as
// session credentials: the pending two-factor login token and the admin access
// gate cookie. Session tokens are opaque and stored server-side.
package jwt

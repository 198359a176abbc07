// Package httpapi serves the admin JSON API of goguard-server: login with
// optional two-factor completion, password management, device and incident
// administration, and account creation and deletion.
//
// Every response is a {code, msg, data} envelope. Routing uses chi; the login
// endpoints are throttled per client IP with httprate.
package httpapi

// Package inspector scans inbound requests for cross-site scripting, SQL
// injection, and cross-site request forgery indicators.
//
// An [Inspector] holds no per-request state. It reports findings and never
// rejects a request itself; turning findings into incidents is the job of the
// middleware package.
package inspector

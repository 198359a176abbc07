package goGuard

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type requestLineContextKey struct{}

type requestLine struct {
	method string
	url    string
}

// WithClientIP attaches the caller's IP address to ctx. Incidents recorded
// without an explicit IP fall back to it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for incident
// records and audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithRequestLine attaches the request method and URL so incidents can
// record where they happened.
func WithRequestLine(ctx context.Context, method, url string) context.Context {
	return context.WithValue(ctx, requestLineContextKey{}, requestLine{method: method, url: url})
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func requestLineFromContext(ctx context.Context) (method, url string) {
	if ctx == nil {
		return "", ""
	}
	rl, _ := ctx.Value(requestLineContextKey{}).(requestLine)
	return rl.method, rl.url
}

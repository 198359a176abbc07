package inspector

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

const (
	defaultSampleLength = 100
	defaultMaxBodyBytes = 1 << 20
)

var safeMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// Config controls CSRF trust decisions and body buffering.
type Config struct {
	// TrustedOrigins lists hostnames accepted in Referer and Origin.
	TrustedOrigins []string
	// AdminPathPrefix marks paths where a request without Referer and Origin is flagged.
	AdminPathPrefix string
	// LoopbackAddrs are client addresses exempt from the missing-header check.
	LoopbackAddrs []string
	// SubstringOriginMatch restores containment matching of trusted origins
	// instead of exact-host or subdomain matching.
	SubstringOriginMatch bool
	MaxBodyBytes         int64
	SampleLength         int
}

// DefaultConfig returns the stock trusted-origin list and the /admin/ prefix.
func DefaultConfig() Config {
	return Config{
		TrustedOrigins:  []string{"localhost", "127.0.0.1", "fktool.com"},
		AdminPathPrefix: "/admin/",
		LoopbackAddrs:   []string{"127.0.0.1", "localhost", "::1"},
		MaxBodyBytes:    defaultMaxBodyBytes,
		SampleLength:    defaultSampleLength,
	}
}

// Source names where a finding was read from.
type Source string

const (
	SourceQuery Source = "query"
	SourceForm  Source = "form"
	SourceJSON  Source = "json"
)

// Finding is one offending field.
type Finding struct {
	Source Source
	Field  string
	Sample string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s param '%s': %s", f.Source, f.Field, f.Sample)
}

// ScanResult groups findings by attack class.
type ScanResult struct {
	XSS          []Finding
	SQLInjection []Finding
}

// Empty reports whether nothing was found.
func (r ScanResult) Empty() bool {
	return len(r.XSS) == 0 && len(r.SQLInjection) == 0
}

// CSRFKind classifies a CSRF finding.
type CSRFKind string

const (
	CSRFMissingHeaders   CSRFKind = "missing_headers"
	CSRFUntrustedReferer CSRFKind = "untrusted_referer"
	CSRFUntrustedOrigin  CSRFKind = "untrusted_origin"
	CSRFHostMismatch     CSRFKind = "host_mismatch"
)

// CSRFIssue is the single CSRF finding for a request.
type CSRFIssue struct {
	Kind   CSRFKind
	Detail string
}

func (c *CSRFIssue) String() string {
	if c == nil {
		return ""
	}
	return c.Detail
}

// Inspector applies the signature lists and CSRF rules.
type Inspector struct {
	cfg       Config
	loopbacks map[string]struct{}
}

// New returns an Inspector. Zero sizing fields fall back to defaults.
func New(cfg Config) *Inspector {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.SampleLength <= 0 {
		cfg.SampleLength = defaultSampleLength
	}
	loopbacks := make(map[string]struct{}, len(cfg.LoopbackAddrs))
	for _, a := range cfg.LoopbackAddrs {
		loopbacks[a] = struct{}{}
	}
	return &Inspector{cfg: cfg, loopbacks: loopbacks}
}

// ScanXSS reports whether value matches any XSS signature.
func ScanXSS(value string) bool {
	return matchAny(xssSignatures, value)
}

// ScanSQLInjection reports whether value matches any SQL injection signature.
func ScanSQLInjection(value string) bool {
	return matchAny(sqlInjectionSignatures, value)
}

// ScanRequest checks query parameters, form fields, and the string values of
// a top-level JSON object body. The body is buffered and restored so
// downstream handlers can still read it. Body parse errors are ignored.
func (i *Inspector) ScanRequest(r *http.Request) ScanResult {
	var res ScanResult
	if r == nil {
		return res
	}

	scan := func(src Source, field, value string) {
		if ScanXSS(value) {
			res.XSS = append(res.XSS, Finding{Source: src, Field: field, Sample: i.sample(value)})
		}
		if ScanSQLInjection(value) {
			res.SQLInjection = append(res.SQLInjection, Finding{Source: src, Field: field, Sample: i.sample(value)})
		}
	}

	scanValues(r.URL.Query(), SourceQuery, scan)

	body := i.bufferBody(r)
	if len(body) == 0 {
		return res
	}

	if form := i.formValues(r, body); form != nil {
		scanValues(form, SourceForm, scan)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil {
		keys := make([]string, 0, len(doc))
		for k := range doc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := doc[k].(string); ok {
				scan(SourceJSON, k, s)
			}
		}
	}

	return res
}

// CheckCSRF returns at most one issue, checking in order: missing headers,
// untrusted Referer, untrusted Origin, Referer/Host mismatch.
func (i *Inspector) CheckCSRF(r *http.Request, clientIP string) *CSRFIssue {
	if r == nil {
		return nil
	}
	if _, ok := safeMethods[r.Method]; ok {
		return nil
	}

	referer := r.Header.Get("Referer")
	origin := r.Header.Get("Origin")

	if referer == "" && origin == "" {
		if i.isLoopback(clientIP) {
			return nil
		}
		if i.cfg.AdminPathPrefix != "" && strings.HasPrefix(r.URL.Path, i.cfg.AdminPathPrefix) {
			return &CSRFIssue{
				Kind:   CSRFMissingHeaders,
				Detail: "missing Referer and Origin headers for sensitive operation",
			}
		}
		return nil
	}

	refererHost := extractHost(referer)
	if refererHost != "" && !i.IsTrustedOrigin(refererHost) {
		return &CSRFIssue{Kind: CSRFUntrustedReferer, Detail: "referer from untrusted origin: " + refererHost}
	}

	if originHost := extractHost(origin); originHost != "" && !i.IsTrustedOrigin(originHost) {
		return &CSRFIssue{Kind: CSRFUntrustedOrigin, Detail: "origin from untrusted source: " + originHost}
	}

	if r.Host != "" && refererHost != "" {
		if host := stripPort(r.Host); host != refererHost {
			return &CSRFIssue{
				Kind:   CSRFHostMismatch,
				Detail: fmt.Sprintf("host mismatch: Host=%s, Referer=%s", r.Host, refererHost),
			}
		}
	}

	return nil
}

// IsTrustedOrigin matches host against the trusted list.
func (i *Inspector) IsTrustedOrigin(host string) bool {
	host = strings.ToLower(host)
	for _, trusted := range i.cfg.TrustedOrigins {
		trusted = strings.ToLower(trusted)
		if i.cfg.SubstringOriginMatch {
			if strings.Contains(host, trusted) {
				return true
			}
			continue
		}
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			return true
		}
	}
	return false
}

func (i *Inspector) isLoopback(ip string) bool {
	if _, ok := i.loopbacks[ip]; ok {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

func (i *Inspector) sample(v string) string {
	runes := []rune(v)
	if len(runes) <= i.cfg.SampleLength {
		return v
	}
	return string(runes[:i.cfg.SampleLength])
}

func (i *Inspector) bufferBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if r.ContentLength > i.cfg.MaxBodyBytes {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, i.cfg.MaxBodyBytes))
	// Downstream handlers still see the full body, including any bytes past
	// the scan limit.
	r.Body = replayBody{Reader: io.MultiReader(bytes.NewReader(body), r.Body), Closer: r.Body}
	if err != nil {
		return nil
	}
	return body
}

type replayBody struct {
	io.Reader
	io.Closer
}

func (i *Inspector) formValues(r *http.Request, body []byte) url.Values {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		return values
	case "multipart/form-data":
		clone := r.Clone(r.Context())
		clone.Body = io.NopCloser(bytes.NewReader(body))
		if err := clone.ParseMultipartForm(i.cfg.MaxBodyBytes); err != nil || clone.MultipartForm == nil {
			return nil
		}
		defer func() { _ = clone.MultipartForm.RemoveAll() }()
		return url.Values(clone.MultipartForm.Value)
	}
	return nil
}

func scanValues(values url.Values, src Source, scan func(Source, string, string)) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range values[k] {
			scan(src, k, v)
		}
	}
}

func extractHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

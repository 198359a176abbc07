package inspector

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestScanSignatures(t *testing.T) {
	if !ScanSQLInjection("1 OR 1=1") {
		t.Fatal("expected tautology to be flagged as sql injection")
	}
	if !ScanXSS("<script>alert(1)</script>") {
		t.Fatal("expected script tag to be flagged as xss")
	}
	if ScanSQLInjection("hello world") || ScanXSS("hello world") {
		t.Fatal("expected benign text not to be flagged")
	}
}

func TestScanSignaturesCaseInsensitive(t *testing.T) {
	for _, v := range []string{"<SCRIPT src=x></SCRIPT>", "JaVaScRiPt:alert(1)", "<IMG src=x ONERROR=alert(1)>"} {
		if !ScanXSS(v) {
			t.Fatalf("expected %q to be flagged", v)
		}
	}
	for _, v := range []string{"admin' or 'a'='a", "x; ", "1 union all select password from users", "sleep(5)"} {
		if !ScanSQLInjection(v) {
			t.Fatalf("expected %q to be flagged", v)
		}
	}
}

func TestScanRequestCoversQueryFormAndJSON(t *testing.T) {
	insp := New(DefaultConfig())

	form := url.Values{"comment": {"<iframe src=evil>"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/news?q=1+OR+1%3D1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res := insp.ScanRequest(req)
	if len(res.SQLInjection) != 1 || res.SQLInjection[0].Source != SourceQuery || res.SQLInjection[0].Field != "q" {
		t.Fatalf("unexpected sql findings: %+v", res.SQLInjection)
	}
	if len(res.XSS) != 1 || res.XSS[0].Source != SourceForm || res.XSS[0].Field != "comment" {
		t.Fatalf("unexpected xss findings: %+v", res.XSS)
	}

	jsonReq := httptest.NewRequest(http.MethodPost, "/admin/news", strings.NewReader(`{"title":"eval(atob(x))","count":3,"nested":{"a":"<script>x</script>"}}`))
	jsonReq.Header.Set("Content-Type", "application/json")
	res = insp.ScanRequest(jsonReq)
	if len(res.XSS) != 1 || res.XSS[0].Source != SourceJSON || res.XSS[0].Field != "title" {
		t.Fatalf("expected only top-level string field to be scanned, got %+v", res.XSS)
	}
}

func TestScanRequestRestoresBody(t *testing.T) {
	insp := New(DefaultConfig())
	payload := `{"name":"hello world"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/faq", strings.NewReader(payload))

	if res := insp.ScanRequest(req); !res.Empty() {
		t.Fatalf("expected no findings, got %+v", res)
	}
	got, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("expected body to be restored, got %q", got)
	}
}

func TestScanRequestKeepsBodyPastLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodyBytes = 16

	tests := []struct {
		name          string
		unknownLength bool
	}{
		{name: "declared length"},
		{name: "unknown length", unknownLength: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insp := New(cfg)
			payload := strings.Repeat("a", 17)
			req := httptest.NewRequest(http.MethodPost, "/admin/upload", strings.NewReader(payload))
			if tt.unknownLength {
				req.ContentLength = -1
				req.Body = io.NopCloser(strings.NewReader(payload))
			}

			insp.ScanRequest(req)
			got, err := io.ReadAll(req.Body)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if len(got) != len(payload) {
				t.Fatalf("expected %d body bytes after scan, got %d", len(payload), len(got))
			}
		})
	}
}

func TestScanRequestIgnoresMalformedJSON(t *testing.T) {
	insp := New(DefaultConfig())
	req := httptest.NewRequest(http.MethodPost, "/admin/faq", bytes.NewBufferString(`{"broken":`))
	if res := insp.ScanRequest(req); !res.Empty() {
		t.Fatalf("expected malformed body to be ignored, got %+v", res)
	}
}

func TestFindingSampleTruncated(t *testing.T) {
	insp := New(DefaultConfig())
	long := "<script>" + strings.Repeat("a", 300) + "</script>"
	req := httptest.NewRequest(http.MethodGet, "/?x="+url.QueryEscape(long), nil)

	res := insp.ScanRequest(req)
	if len(res.XSS) != 1 {
		t.Fatalf("expected one finding, got %d", len(res.XSS))
	}
	if n := len([]rune(res.XSS[0].Sample)); n != 100 {
		t.Fatalf("expected 100-char sample, got %d", n)
	}
}

func TestCSRFMissingHeaders(t *testing.T) {
	insp := New(DefaultConfig())

	req := httptest.NewRequest(http.MethodPost, "/admin/user/delete", nil)
	issue := insp.CheckCSRF(req, "203.0.113.9")
	if issue == nil || issue.Kind != CSRFMissingHeaders {
		t.Fatalf("expected missing-headers finding, got %+v", issue)
	}

	if issue := insp.CheckCSRF(req, "127.0.0.1"); issue != nil {
		t.Fatalf("expected loopback client to be exempt, got %+v", issue)
	}

	public := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	if issue := insp.CheckCSRF(public, "203.0.113.9"); issue != nil {
		t.Fatalf("expected non-admin path to be exempt, got %+v", issue)
	}
}

func TestCSRFSafeMethodsExempt(t *testing.T) {
	insp := New(DefaultConfig())
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace} {
		req := httptest.NewRequest(m, "/admin/user", nil)
		req.Header.Set("Origin", "https://evil.example")
		if issue := insp.CheckCSRF(req, "203.0.113.9"); issue != nil {
			t.Fatalf("expected %s to be exempt, got %+v", m, issue)
		}
	}
}

func TestCSRFCheckOrder(t *testing.T) {
	insp := New(DefaultConfig())

	req := httptest.NewRequest(http.MethodPost, "/admin/user", nil)
	req.Host = "fktool.com"
	req.Header.Set("Referer", "https://evil.example/page")
	req.Header.Set("Origin", "https://evil.example")
	issue := insp.CheckCSRF(req, "203.0.113.9")
	if issue == nil || issue.Kind != CSRFUntrustedReferer {
		t.Fatalf("expected referer finding first, got %+v", issue)
	}

	req.Header.Set("Referer", "https://fktool.com/admin")
	issue = insp.CheckCSRF(req, "203.0.113.9")
	if issue == nil || issue.Kind != CSRFUntrustedOrigin {
		t.Fatalf("expected origin finding, got %+v", issue)
	}

	req.Header.Set("Origin", "https://fktool.com")
	req.Host = "admin.fktool.com:8443"
	issue = insp.CheckCSRF(req, "203.0.113.9")
	if issue == nil || issue.Kind != CSRFHostMismatch {
		t.Fatalf("expected host mismatch, got %+v", issue)
	}

	req.Host = "fktool.com:443"
	if issue := insp.CheckCSRF(req, "203.0.113.9"); issue != nil {
		t.Fatalf("expected consistent trusted request to pass, got %+v", issue)
	}
}

func TestTrustedOriginMatching(t *testing.T) {
	strict := New(DefaultConfig())
	if strict.IsTrustedOrigin("evil-fktool.com") {
		t.Fatal("expected lookalike host to be rejected by default")
	}
	if !strict.IsTrustedOrigin("www.fktool.com") {
		t.Fatal("expected subdomain to be trusted")
	}

	cfg := DefaultConfig()
	cfg.SubstringOriginMatch = true
	legacy := New(cfg)
	if !legacy.IsTrustedOrigin("evil-fktool.com") {
		t.Fatal("expected substring matching to admit containing hosts")
	}
}

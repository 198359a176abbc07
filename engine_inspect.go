package goGuard

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/goGuard/inspector"
)

// maxQuotedFindings bounds how many findings an incident description quotes.
const maxQuotedFindings = 3

// InspectRequest describes the inspectrequest operation and its observable behavior.
//
// InspectRequest scans r for XSS and SQL injection payloads and CSRF
// indicators and records one HIGH incident per attack class found. It never
// blocks the request; the recorded incidents are returned for logging.
func (e *Engine) InspectRequest(ctx context.Context, r *http.Request, clientIP string) []Incident {
	if e == nil || e.inspector == nil || r == nil {
		return nil
	}

	var found []Incident
	scan := e.inspector.ScanRequest(r)
	if len(scan.XSS) > 0 {
		found = append(found, Incident{
			Type:        IncidentXSS,
			Description: "XSS attack detected: " + quoteFindings(scan.XSS),
		})
	}
	if len(scan.SQLInjection) > 0 {
		found = append(found, Incident{
			Type:        IncidentSQLInjection,
			Description: "SQL injection detected: " + quoteFindings(scan.SQLInjection),
		})
	}
	if issue := e.inspector.CheckCSRF(r, clientIP); issue != nil {
		found = append(found, Incident{
			Type:        IncidentCSRF,
			Description: "CSRF attack detected: " + issue.String(),
		})
	}
	if len(found) == 0 {
		return nil
	}

	e.metricInc(MetricRequestThreatDetected)
	for i := range found {
		found[i].Severity = SeverityHigh
		found[i].IP = clientIP
		found[i].UserAgent = r.UserAgent()
		found[i].Method = r.Method
		found[i].URL = r.URL.RequestURI()
		e.Record(ctx, found[i])
	}
	return found
}

func quoteFindings(findings []inspector.Finding) string {
	n := len(findings)
	if n > maxQuotedFindings {
		n = maxQuotedFindings
	}
	parts := make([]string, 0, n)
	for _, f := range findings[:n] {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "; ")
}

package goGuard

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDetectHighAlertsDedupedRecipients(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Incident.SecurityTeam = []string{"sec@example.com", "Alice@example.com"}
	})
	h.addAdmin(t, "alice", "Str0ng!Pass", "alice@example.com")
	h.addAdmin(t, "bob", "Str0ng!Pass", "bob@example.com")
	h.addAccount(t, "carol", "Str0ng!Pass", "carol@example.com", RoleUser)

	ok := h.engine.Detect(context.Background(), IncidentSQLInjection, SeverityHigh, "union select", Actor{}, "203.0.113.9")
	if !ok {
		t.Fatalf("expected detect to succeed")
	}

	sent := h.notifier.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one alert, got %d", len(sent))
	}
	want := []string{"sec@example.com", "Alice@example.com", "bob@example.com"}
	if !reflect.DeepEqual(sent[0].To, want) {
		t.Fatalf("expected recipients %v, got %v", want, sent[0].To)
	}
	if sent[0].Subject != "[Security HIGH] SQL_INJECTION_ATTEMPT" {
		t.Fatalf("unexpected subject %q", sent[0].Subject)
	}
	if !strings.Contains(sent[0].HTML, "203.0.113.9") {
		t.Fatalf("expected IP in body")
	}
}

func TestDetectLowAndMediumDoNotNotify(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Str0ng!Pass", "alice@example.com")
	ctx := context.Background()

	for _, sev := range []Severity{SeverityLow, SeverityMedium} {
		if !h.engine.Detect(ctx, IncidentPermissionDenied, sev, "denied", Actor{}, testIP) {
			t.Fatalf("expected %s incident stored", sev)
		}
	}
	if len(h.notifier.sent()) != 0 {
		t.Fatalf("expected no alerts")
	}
	if got := len(h.store.incidentsOf(IncidentPermissionDenied)); got != 2 {
		t.Fatalf("expected 2 incidents, got %d", got)
	}
}

func TestDetectFillsRequestDetailsFromContext(t *testing.T) {
	h := newHarness(t)
	ctx := WithClientIP(context.Background(), "198.51.100.7")
	ctx = WithUserAgent(ctx, "curl/8.0")
	ctx = WithRequestLine(ctx, "POST", "/admin/users?id=1")

	h.engine.Detect(ctx, IncidentXSS, SeverityMedium, "script tag", Actor{Username: "alice"}, "")
	got := h.store.incidentsOf(IncidentXSS)
	if len(got) != 1 {
		t.Fatalf("expected one incident, got %d", len(got))
	}
	inc := got[0]
	if inc.IP != "198.51.100.7" || inc.UserAgent != "curl/8.0" || inc.Method != "POST" || inc.URL != "/admin/users?id=1" {
		t.Fatalf("unexpected request details %+v", inc)
	}
	if inc.ID == "" || !inc.CreatedAt.Equal(h.clock.Now()) || inc.Username != "alice" {
		t.Fatalf("unexpected incident %+v", inc)
	}
}

func TestDetectReportsFailures(t *testing.T) {
	h := newHarness(t)
	h.addAdmin(t, "alice", "Str0ng!Pass", "alice@example.com")
	ctx := context.Background()

	if h.engine.Detect(ctx, IncidentType("NOPE"), SeverityHigh, "x", Actor{}, testIP) {
		t.Fatalf("unknown type must be rejected")
	}
	if h.engine.Detect(ctx, IncidentXSS, Severity("SEVERE"), "x", Actor{}, testIP) {
		t.Fatalf("unknown severity must be rejected")
	}

	h.notifier.err = errors.New("smtp down")
	if h.engine.Detect(ctx, IncidentXSS, SeverityCritical, "x", Actor{}, testIP) {
		t.Fatalf("failed alert must report false")
	}
	if got := len(h.store.incidentsOf(IncidentXSS)); got != 1 {
		t.Fatalf("incident is stored even when the alert fails, got %d", got)
	}

	h.notifier.err = nil
	h.store.insertIncidentErr = errors.New("db down")
	if h.engine.Detect(ctx, IncidentXSS, SeverityCritical, "x", Actor{}, testIP) {
		t.Fatalf("persist failure must report false")
	}
	if len(h.notifier.sent()) != 0 {
		t.Fatalf("no alert without a stored incident")
	}
}

func TestDetectAlertsSecurityTeamWhenAdminLookupFails(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Incident.SecurityTeam = []string{"sec@example.com"} })
	h.store.adminEmailsErr = errors.New("db down")

	if !h.engine.Detect(context.Background(), IncidentCSRF, SeverityHigh, "bad origin", Actor{}, testIP) {
		t.Fatalf("expected detect to succeed")
	}
	sent := h.notifier.sent()
	if len(sent) != 1 || !reflect.DeepEqual(sent[0].To, []string{"sec@example.com"}) {
		t.Fatalf("expected alert to the security team, got %+v", sent)
	}
}

func TestRespondDisablesOnlyForHighBruteForce(t *testing.T) {
	h := newHarness(t)
	alice := h.addAdmin(t, "alice", "Str0ng!Pass", "")
	h.addAdmin(t, "bob", "Str0ng!Pass", "")
	ctx := context.Background()

	h.engine.Respond(ctx, IncidentBruteForce, SeverityMedium, Actor{AccountID: alice.ID}, testIP)
	h.engine.Respond(ctx, IncidentXSS, SeverityCritical, Actor{AccountID: alice.ID}, testIP)
	if h.store.account(t, "alice").Disabled {
		t.Fatalf("only HIGH brute force disables")
	}

	h.engine.Respond(ctx, IncidentBruteForce, SeverityHigh, Actor{AccountID: alice.ID}, testIP)
	h.engine.Respond(ctx, IncidentBruteForce, SeverityCritical, Actor{Username: "bob"}, testIP)
	if !h.store.account(t, "alice").Disabled || !h.store.account(t, "bob").Disabled {
		t.Fatalf("expected both accounts disabled")
	}
}

func TestListIncidentsAndResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		h.engine.Detect(ctx, IncidentLoginFailure, SeverityLow, "failure", Actor{}, testIP)
		h.clock.Advance(time.Minute)
	}

	page, err := h.engine.ListIncidents(ctx, IncidentFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || !page.Items[0].CreatedAt.After(page.Items[1].CreatedAt) {
		t.Fatalf("unexpected page %+v", page)
	}
	if _, err := h.engine.ListIncidents(ctx, IncidentFilter{Offset: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	id := page.Items[0].ID
	if err := h.engine.ResolveIncident(ctx, id, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected resolver required, got %v", err)
	}
	if err := h.engine.ResolveIncident(ctx, "missing", "alice"); !errors.Is(err, ErrIncidentNotFound) {
		t.Fatalf("expected ErrIncidentNotFound, got %v", err)
	}
	if err := h.engine.ResolveIncident(ctx, id, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	resolved := true
	page, _ = h.engine.ListIncidents(ctx, IncidentFilter{Resolved: &resolved})
	if page.Total != 1 || page.Items[0].ResolvedBy != "alice" || page.Items[0].ResolvedAt.IsZero() {
		t.Fatalf("unexpected resolved page %+v", page)
	}
}

func TestIncidentStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.Record(ctx, Incident{Type: IncidentXSS, Severity: SeverityHigh, CreatedAt: h.clock.Now().Add(-48 * time.Hour)})
	h.engine.Detect(ctx, IncidentXSS, SeverityHigh, "a", Actor{}, testIP)
	h.engine.Detect(ctx, IncidentCSRF, SeverityCritical, "b", Actor{}, testIP)
	h.engine.Detect(ctx, IncidentCSRF, SeverityLow, "c", Actor{}, testIP)

	stats, err := h.engine.IncidentStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := IncidentStats{Total: 4, High: 2, Critical: 1, Today: 3}
	if *stats != want {
		t.Fatalf("expected %+v, got %+v", want, *stats)
	}
}

func TestReportBucketsEveryDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 3, 23, 59, 59, 0, time.UTC)

	h.engine.Record(ctx, Incident{Type: IncidentXSS, Severity: SeverityHigh, CreatedAt: start.Add(2 * time.Hour)})
	h.engine.Record(ctx, Incident{Type: IncidentXSS, Severity: SeverityLow, CreatedAt: start.Add(3 * time.Hour)})
	h.engine.Record(ctx, Incident{Type: IncidentCSRF, Severity: SeverityCritical, CreatedAt: end.Add(-time.Hour)})
	h.engine.Record(ctx, Incident{Type: IncidentCSRF, Severity: SeverityCritical, CreatedAt: end.Add(time.Hour)})

	report, err := h.engine.Report(ctx, start, end)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Total != 3 || report.ByType[IncidentXSS] != 2 || report.BySeverity[SeverityCritical] != 1 {
		t.Fatalf("unexpected totals %+v", report)
	}
	if !reflect.DeepEqual(report.Days, []string{"2026-03-01", "2026-03-02", "2026-03-03"}) {
		t.Fatalf("unexpected days %v", report.Days)
	}
	if report.Daily["2026-03-01"] != (SeverityCounts{Total: 2, Low: 1, High: 1}) {
		t.Fatalf("unexpected first day %+v", report.Daily["2026-03-01"])
	}
	if report.Daily["2026-03-02"] != (SeverityCounts{}) {
		t.Fatalf("empty day must be present and zero")
	}

	if _, err := h.engine.Report(ctx, end, start); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for reversed range, got %v", err)
	}
	if _, err := h.engine.Report(ctx, start, start.AddDate(2, 0, 0)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for long range, got %v", err)
	}
}

func TestRunDrill(t *testing.T) {
	h := newHarness(t)
	if got := h.engine.RunDrill(context.Background()); got != 2 {
		t.Fatalf("expected 2 drill incidents, got %d", got)
	}
	failures := h.store.incidentsOf(IncidentLoginFailure)
	denied := h.store.incidentsOf(IncidentPermissionDenied)
	if len(failures) != 1 || failures[0].Severity != SeverityMedium || failures[0].IP != "192.168.1.100" {
		t.Fatalf("unexpected drill failure %+v", failures)
	}
	if len(denied) != 1 || denied[0].Severity != SeverityLow {
		t.Fatalf("unexpected drill denial %+v", denied)
	}
	if len(h.notifier.sent()) != 0 {
		t.Fatalf("drill must not alert")
	}
}

func TestDeleteAccountKeepsLastAdministrator(t *testing.T) {
	h := newHarness(t)
	alice := h.addAdmin(t, "alice", "Str0ng!Pass", "")
	bob := h.addAdmin(t, "bob", "Str0ng!Pass", "")
	carol := h.addAccount(t, "carol", "Str0ng!Pass", "", RoleUser)
	ctx := context.Background()

	if err := h.engine.DeleteAccount(ctx, carol.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := h.engine.DeleteAccount(ctx, bob.ID); err != nil {
		t.Fatalf("delete second admin: %v", err)
	}
	if err := h.engine.DeleteAccount(ctx, alice.ID); !errors.Is(err, ErrLastAdministrator) {
		t.Fatalf("expected ErrLastAdministrator, got %v", err)
	}
	if err := h.engine.DeleteAccount(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

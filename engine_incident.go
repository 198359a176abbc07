package goGuard

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/notify"
	"github.com/google/uuid"
)

const (
	dayLayout      = "2006-01-02"
	maxReportDays  = 366
	drillUserAgent = "goguard-drill"
)

// Detect describes the detect operation and its observable behavior.
//
// Detect records an incident and, for HIGH and CRITICAL, alerts the security
// team and every enabled administrator. IP, user agent, method and URL fall
// back to the values attached to ctx. Failures are logged, never returned;
// the result reports whether the incident was stored and any alert delivered.
func (e *Engine) Detect(ctx context.Context, typ IncidentType, sev Severity, description string, actor Actor, ip string) bool {
	return e.Record(ctx, Incident{
		Type:        typ,
		Severity:    sev,
		Description: description,
		AccountID:   actor.AccountID,
		Username:    actor.Username,
		IP:          ip,
	})
}

// Record is Detect for callers that already hold a populated Incident, such
// as the response monitor which also knows the status code.
func (e *Engine) Record(ctx context.Context, inc Incident) bool {
	if e == nil || e.store == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !inc.Type.Valid() || !inc.Severity.Valid() {
		e.logger.Error().Str("type", string(inc.Type)).Str("severity", string(inc.Severity)).Msg("incident rejected: unknown type or severity")
		return false
	}

	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.IP == "" {
		inc.IP = clientIPFromContext(ctx)
	}
	if inc.UserAgent == "" {
		inc.UserAgent = userAgentFromContext(ctx)
	}
	if inc.Method == "" && inc.URL == "" {
		inc.Method, inc.URL = requestLineFromContext(ctx)
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = e.now()
	}

	if err := e.store.InsertIncident(ctx, &inc); err != nil {
		e.metricInc(MetricIncidentPersistFailed)
		e.logger.Error().Err(err).
			Str("type", string(inc.Type)).
			Str("severity", string(inc.Severity)).
			Msg("incident persist failed")
		return false
	}
	e.metricInc(MetricIncidentRecorded)
	e.logger.Warn().
		Str("incident_id", inc.ID).
		Str("type", string(inc.Type)).
		Str("severity", string(inc.Severity)).
		Str("ip", inc.IP).
		Str("url", inc.URL).
		Msg(inc.Description)

	if !inc.Severity.AtLeastHigh() {
		return true
	}
	return e.alert(ctx, &inc)
}

func (e *Engine) alert(ctx context.Context, inc *Incident) bool {
	recipients := append([]string(nil), e.config.Incident.SecurityTeam...)
	admins, err := e.store.AdminEmails(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("administrator emails unavailable for incident alert")
	}
	recipients = dedupeAddresses(append(recipients, admins...))
	if len(recipients) == 0 {
		e.logger.Warn().Str("incident_id", inc.ID).Msg("no recipients for incident alert")
		return true
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Incident.NotifyTimeout)
	defer cancel()
	err = e.notifier.Send(sendCtx, notify.Message{
		Subject: fmt.Sprintf("[Security %s] %s", inc.Severity, inc.Type),
		To:      recipients,
		HTML:    incidentBody(inc),
	})
	if err != nil {
		e.metricInc(MetricIncidentNotifyFailed)
		e.logger.Error().Err(err).Str("incident_id", inc.ID).Int("recipients", len(recipients)).Msg("incident alert failed")
		return false
	}
	e.metricInc(MetricIncidentNotified)
	return true
}

// Respond describes the respond operation and its observable behavior.
//
// Respond applies containment for HIGH and CRITICAL incidents. A brute force
// attempt disables the account; other types are only logged.
func (e *Engine) Respond(ctx context.Context, typ IncidentType, sev Severity, actor Actor, ip string) {
	if e == nil || !sev.AtLeastHigh() {
		return
	}
	switch typ {
	case IncidentBruteForce:
		e.disableAccount(ctx, actor, ip)
	case IncidentUnauthorizedAccess, IncidentFileUploadViolation:
		e.logger.Warn().
			Str("type", string(typ)).
			Str("severity", string(sev)).
			Str("account_id", actor.AccountID).
			Str("ip", ip).
			Msg("incident requires manual review")
	}
}

func (e *Engine) disableAccount(ctx context.Context, actor Actor, ip string) {
	disable := func(tx AccountTx) error {
		tx.Account().Disabled = true
		return nil
	}
	var (
		account *Account
		err     error
	)
	switch {
	case actor.AccountID != "":
		account, err = e.store.UpdateAccount(ctx, actor.AccountID, disable)
	case actor.Username != "":
		account, err = e.store.UpdateAccountByUsername(ctx, actor.Username, disable)
	default:
		e.logger.Warn().Str("ip", ip).Msg("brute force containment skipped: no account")
		return
	}
	if err != nil {
		e.logger.Error().Err(err).Str("account_id", actor.AccountID).Msg("brute force containment failed")
		return
	}
	e.metricInc(MetricAccountDisabled)
	e.emitAudit(ctx, auditEventAccountDisabled, true, account.ID, account.Username, nil, func() map[string]string {
		return map[string]string{"reason": string(IncidentBruteForce)}
	})
	e.logger.Warn().Str("account_id", account.ID).Str("ip", ip).Msg("account disabled after brute force attempt")
}

// ListIncidents returns one page of incidents, newest first.
func (e *Engine) ListIncidents(ctx context.Context, filter IncidentFilter) (*IncidentPage, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if filter.Offset < 0 || filter.Limit < 0 {
		return nil, fmt.Errorf("%w: offset and limit must be >= 0", ErrValidation)
	}
	items, total, err := e.store.ListIncidents(ctx, filter)
	if err != nil {
		return nil, storeErr(err)
	}
	if items == nil {
		items = []Incident{}
	}
	return &IncidentPage{Items: items, Total: total}, nil
}

// IncidentStats describes the incidentstats operation and its observable behavior.
//
// IncidentStats counts all incidents, the HIGH and CRITICAL ones, and those
// recorded since local midnight.
func (e *Engine) IncidentStats(ctx context.Context) (*IncidentStats, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count := func(f IncidentFilter) (int, error) {
		f.Limit = 1
		_, total, err := e.store.ListIncidents(ctx, f)
		return total, err
	}

	var stats IncidentStats
	var err error
	if stats.Total, err = count(IncidentFilter{}); err != nil {
		return nil, storeErr(err)
	}
	if stats.High, err = count(IncidentFilter{Severity: SeverityHigh}); err != nil {
		return nil, storeErr(err)
	}
	if stats.Critical, err = count(IncidentFilter{Severity: SeverityCritical}); err != nil {
		return nil, storeErr(err)
	}
	if stats.Today, err = count(IncidentFilter{From: midnight}); err != nil {
		return nil, storeErr(err)
	}
	return &stats, nil
}

// Report describes the report operation and its observable behavior.
//
// Report aggregates incidents created in [start, end] by type, by severity
// and by calendar day. Every day in the range appears in Days, including
// days without incidents.
func (e *Engine) Report(ctx context.Context, start, end time.Time) (*IncidentReport, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: report end precedes start", ErrValidation)
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return nil, fmt.Errorf("%w: report range exceeds %d days", ErrValidation, maxReportDays)
	}

	items, _, err := e.store.ListIncidents(ctx, IncidentFilter{From: start, To: end})
	if err != nil {
		return nil, storeErr(err)
	}

	report := &IncidentReport{
		Start:      start,
		End:        end,
		ByType:     map[IncidentType]int{},
		BySeverity: map[Severity]int{},
		Daily:      map[string]SeverityCounts{},
	}
	loc := start.Location()
	for d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc); !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		report.Days = append(report.Days, key)
		report.Daily[key] = SeverityCounts{}
	}

	for _, inc := range items {
		report.Total++
		report.ByType[inc.Type]++
		report.BySeverity[inc.Severity]++

		key := inc.CreatedAt.In(loc).Format(dayLayout)
		bucket, ok := report.Daily[key]
		if !ok {
			report.Days = append(report.Days, key)
		}
		bucket.Total++
		switch inc.Severity {
		case SeverityLow:
			bucket.Low++
		case SeverityMedium:
			bucket.Medium++
		case SeverityHigh:
			bucket.High++
		case SeverityCritical:
			bucket.Critical++
		}
		report.Daily[key] = bucket
	}
	sort.Strings(report.Days)
	return report, nil
}

// ResolveIncident marks the incident resolved by resolvedBy.
func (e *Engine) ResolveIncident(ctx context.Context, id, resolvedBy string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if id == "" || strings.TrimSpace(resolvedBy) == "" {
		return fmt.Errorf("%w: incident id and resolver are required", ErrValidation)
	}
	if err := e.store.ResolveIncident(ctx, id, resolvedBy, e.now()); err != nil {
		return storeErr(err)
	}
	e.emitAudit(ctx, auditEventIncidentResolved, true, "", resolvedBy, nil, func() map[string]string {
		return map[string]string{"incident_id": id}
	})
	return nil
}

// RunDrill describes the rundrill operation and its observable behavior.
//
// RunDrill records a synthetic LOGIN_FAILURE (MEDIUM) and PERMISSION_DENIED
// (LOW) from the configured drill IP and returns how many were stored.
func (e *Engine) RunDrill(ctx context.Context) int {
	if ctx == nil {
		ctx = context.Background()
	}
	ip := e.config.Incident.DrillIP
	drill := []Incident{
		{
			Type:        IncidentLoginFailure,
			Severity:    SeverityMedium,
			Description: "drill: repeated login failures",
			Username:    "drill_user",
			IP:          ip,
			UserAgent:   drillUserAgent,
		},
		{
			Type:        IncidentPermissionDenied,
			Severity:    SeverityLow,
			Description: "drill: access to a restricted page",
			IP:          ip,
			UserAgent:   drillUserAgent,
		},
	}
	recorded := 0
	for _, inc := range drill {
		if e.Record(ctx, inc) {
			recorded++
		}
	}
	return recorded
}

func dedupeAddresses(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func incidentBody(inc *Incident) string {
	var b strings.Builder
	b.WriteString(`<div style="font-family:sans-serif"><h3>Security incident</h3><table>`)
	row := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteString("<tr><td><b>")
		b.WriteString(k)
		b.WriteString("</b></td><td>")
		b.WriteString(html.EscapeString(v))
		b.WriteString("</td></tr>")
	}
	row("Type", string(inc.Type))
	row("Severity", string(inc.Severity))
	row("Description", inc.Description)
	row("Account", inc.Username)
	row("IP", inc.IP)
	row("URL", inc.URL)
	row("Method", inc.Method)
	row("User agent", inc.UserAgent)
	row("Time", inc.CreatedAt.Format(time.RFC3339))
	b.WriteString("</table></div>")
	return b.String()
}

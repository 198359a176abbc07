package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	goGuard "github.com/MrEthical07/goGuard"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	reportDays      = 7
)

// parseTime accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseTime(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q", goGuard.ErrValidation, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func positiveInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", goGuard.ErrValidation, key)
	}
	return n, nil
}

func incidentFilter(q url.Values) (goGuard.IncidentFilter, error) {
	var f goGuard.IncidentFilter
	page, err := positiveInt(q, "page", 1)
	if err != nil {
		return f, err
	}
	limit, err := positiveInt(q, "limit", defaultPageSize)
	if err != nil {
		return f, err
	}
	f.Limit = min(limit, maxPageSize)
	f.Offset = (page - 1) * f.Limit

	f.Type = goGuard.IncidentType(strings.ToUpper(q.Get("type")))
	f.Severity = goGuard.Severity(strings.ToUpper(q.Get("severity")))
	f.Search = strings.TrimSpace(q.Get("search"))
	if v := q.Get("start"); v != "" {
		if f.From, err = parseTime(v, false); err != nil {
			return f, err
		}
	}
	if v := q.Get("end"); v != "" {
		if f.To, err = parseTime(v, true); err != nil {
			return f, err
		}
	}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: resolved must be a boolean", goGuard.ErrValidation)
		}
		f.Resolved = &b
	}
	return f, nil
}

func (a *api) listIncidents(w http.ResponseWriter, r *http.Request) {
	filter, err := incidentFilter(r.URL.Query())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	page, err := a.engine.ListIncidents(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", map[string]any{
		"items": newIncidentViews(page.Items),
		"total": page.Total,
		"page":  filter.Offset/filter.Limit + 1,
		"limit": filter.Limit,
	})
}

func (a *api) incidentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.engine.IncidentStats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", stats)
}

func (a *api) incidentReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end := time.Now()
	if v := q.Get("end"); v != "" {
		t, err := parseTime(v, true)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		end = t
	}
	start := end.AddDate(0, 0, -reportDays)
	if v := q.Get("start"); v != "" {
		t, err := parseTime(v, false)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		start = t
	}
	report, err := a.engine.Report(r.Context(), start, end)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "ok", report)
}

func (a *api) resolveIncident(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.ResolveIncident(r.Context(), chi.URLParam(r, "incidentID"), current(r).Username); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "incident resolved", nil)
}

func (a *api) runDrill(w http.ResponseWriter, r *http.Request) {
	n := a.engine.RunDrill(r.Context())
	ok(w, "drill recorded", map[string]int{"recorded": n})
}

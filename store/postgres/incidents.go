package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

const incidentColumns = `id, type, severity, description, account_id, username, ip, user_agent,
	url, method, status, resolved, resolved_by, resolved_at, created_at`

func (s *Store) InsertIncident(ctx context.Context, inc *goGuard.Incident) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		inc.ID, string(inc.Type), string(inc.Severity), inc.Description, inc.AccountID, inc.Username,
		inc.IP, inc.UserAgent, inc.URL, inc.Method, inc.Status, inc.Resolved, inc.ResolvedBy,
		inc.ResolvedAt, inc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// incidentWhere renders filter as a WHERE clause with positional arguments.
func incidentWhere(f goGuard.IncidentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= ?", f.To)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.Severity != "" {
		add("severity = ?", string(f.Severity))
	}
	if f.Resolved != nil {
		add("resolved = ?", *f.Resolved)
	}
	if f.Search != "" {
		add("(url ILIKE ? OR ip ILIKE ? OR description ILIKE ?)", "%"+escapeLike(f.Search)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) ListIncidents(ctx context.Context, f goGuard.IncidentFilter) ([]goGuard.Incident, int, error) {
	where, args := incidentWhere(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var out []goGuard.Incident
	for rows.Next() {
		var (
			inc           goGuard.Incident
			typ, severity string
		)
		if err := rows.Scan(&inc.ID, &typ, &severity, &inc.Description, &inc.AccountID, &inc.Username,
			&inc.IP, &inc.UserAgent, &inc.URL, &inc.Method, &inc.Status, &inc.Resolved, &inc.ResolvedBy,
			&inc.ResolvedAt, &inc.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan incident: %w", err)
		}
		inc.Type = goGuard.IncidentType(typ)
		inc.Severity = goGuard.Severity(severity)
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate incidents: %w", err)
	}
	return out, total, nil
}

func (s *Store) ResolveIncident(ctx context.Context, id, resolvedBy string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE incidents SET resolved = TRUE, resolved_by = $2, resolved_at = $3 WHERE id = $1`,
		id, resolvedBy, at)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return goGuard.ErrIncidentNotFound
	}
	return nil
}

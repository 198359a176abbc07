package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	goGuard "github.com/MrEthical07/goGuard"
)

const deviceColumns = `id, account_id, fingerprint, name, type, user_agent, first_ip,
	last_login_at, last_login_ip, login_count, trusted, active, created_at`

func scanDevice(row pgx.Row) (*goGuard.Device, error) {
	var d goGuard.Device
	err := row.Scan(&d.ID, &d.AccountID, &d.Fingerprint, &d.Name, &d.Type, &d.UserAgent, &d.FirstIP,
		&d.LastLoginAt, &d.LastLoginIP, &d.LoginCount, &d.Trusted, &d.Active, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goGuard.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}
	return &d, nil
}

func (s *Store) DeviceByFingerprint(ctx context.Context, accountID, fingerprint string) (*goGuard.Device, error) {
	return scanDevice(s.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE account_id = $1 AND fingerprint = $2`,
		accountID, fingerprint))
}

func (s *Store) UpsertDevice(ctx context.Context, d *goGuard.Device) (*goGuard.Device, error) {
	return scanDevice(s.db.QueryRow(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, FALSE, TRUE, $10)
		ON CONFLICT (account_id, fingerprint) DO UPDATE SET
			login_count = devices.login_count + 1,
			last_login_at = EXCLUDED.last_login_at,
			last_login_ip = EXCLUDED.last_login_ip,
			user_agent = EXCLUDED.user_agent
		RETURNING `+deviceColumns,
		d.ID, d.AccountID, d.Fingerprint, d.Name, d.Type, d.UserAgent, d.FirstIP,
		d.LastLoginAt, d.LastLoginIP, d.CreatedAt,
	))
}

func (s *Store) ListDevices(ctx context.Context, accountID string, activeOnly bool) ([]goGuard.Device, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+deviceColumns+` FROM devices
		WHERE account_id = $1 AND (active OR NOT $2)
		ORDER BY last_login_at DESC`, accountID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var out []goGuard.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) SetDeviceActive(ctx context.Context, accountID, deviceID string, active bool) error {
	return s.setDeviceFlag(ctx, `UPDATE devices SET active = $3 WHERE id = $1 AND account_id = $2`, accountID, deviceID, active)
}

func (s *Store) SetDeviceTrusted(ctx context.Context, accountID, deviceID string, trusted bool) error {
	return s.setDeviceFlag(ctx, `UPDATE devices SET trusted = $3 WHERE id = $1 AND account_id = $2`, accountID, deviceID, trusted)
}

func (s *Store) setDeviceFlag(ctx context.Context, query, accountID, deviceID string, v bool) error {
	tag, err := s.db.Exec(ctx, query, deviceID, accountID, v)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return goGuard.ErrDeviceNotFound
	}
	return nil
}

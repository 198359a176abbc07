package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/google/uuid"
)

// CheckSuspicious describes the checksuspicious operation and its observable behavior.
//
// CheckSuspicious compares a login request against the account's known
// devices and last login IP. It never blocks a login.
func (e *Engine) CheckSuspicious(ctx context.Context, account *Account, ip, userAgent string) (*SuspiciousCheck, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.checkSuspicious(ctx, account.ID, internal.Fingerprint(userAgent, ip), account.LastLoginIP, ip)
}

func (e *Engine) checkSuspicious(ctx context.Context, accountID, fingerprint, lastIP, ip string) (*SuspiciousCheck, error) {
	check := &SuspiciousCheck{Reasons: []string{}}

	device, err := e.store.DeviceByFingerprint(ctx, accountID, fingerprint)
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		check.Reasons = append(check.Reasons, "first login from this device")
	case err != nil:
		return nil, storeErr(err)
	case !device.Trusted:
		check.Reasons = append(check.Reasons, "untrusted device")
	}

	if lastIP != "" && ip != "" && lastIP != ip {
		check.Reasons = append(check.Reasons, fmt.Sprintf("ip changed: %s -> %s", lastIP, ip))
	}
	check.IsSuspicious = len(check.Reasons) > 0
	return check, nil
}

// RegisterDevice upserts the device identified by (userAgent, ip) for the
// account: a first sighting is inserted untrusted with a login count of one,
// later sightings bump the count and refresh the last-login fields.
func (e *Engine) RegisterDevice(ctx context.Context, accountID, ip, userAgent string) (*Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	ua := internal.TruncateUserAgent(userAgent)
	device, err := e.store.UpsertDevice(ctx, &Device{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Fingerprint: internal.Fingerprint(userAgent, ip),
		Name:        internal.DeviceName(userAgent),
		Type:        internal.Classify(userAgent),
		UserAgent:   ua,
		FirstIP:     ip,
		LastLoginAt: now,
		LastLoginIP: ip,
		LoginCount:  1,
		Active:      true,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if device.LoginCount == 1 {
		e.metricInc(MetricDeviceRegistered)
		e.emitAudit(ctx, auditEventDeviceRegistered, true, accountID, "", nil, func() map[string]string {
			return map[string]string{"device_id": device.ID, "type": device.Type, "name": device.Name}
		})
	}
	return device, nil
}

// trackDevice runs the suspicious check and the upsert after a successful
// login. Failures are logged and never fail the login.
func (e *Engine) trackDevice(ctx context.Context, account *Account, req LoginRequest, prevIP string) *SuspiciousCheck {
	if !e.config.Device.Enabled {
		return nil
	}
	fingerprint := internal.Fingerprint(req.UserAgent, req.IP)
	check, err := e.checkSuspicious(ctx, account.ID, fingerprint, prevIP, req.IP)
	if err != nil {
		e.logger.Warn().Err(err).Str("account_id", account.ID).Msg("device check failed")
	}
	if _, err := e.RegisterDevice(ctx, account.ID, req.IP, req.UserAgent); err != nil {
		e.logger.Warn().Err(err).Str("account_id", account.ID).Msg("device registration failed")
	}
	if check == nil || !check.IsSuspicious {
		return nil
	}

	e.metricInc(MetricDeviceSuspicious)
	if e.config.Device.ReportSuspicious {
		e.Detect(ctx, IncidentSuspiciousActivity, SeverityLow,
			fmt.Sprintf("suspicious login for %s: %v", account.Username, check.Reasons),
			Actor{AccountID: account.ID, Username: account.Username}, req.IP)
	}
	return check
}

// ListDevices returns the account's devices, newest login first.
func (e *Engine) ListDevices(ctx context.Context, accountID string, activeOnly bool) ([]Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	devices, err := e.store.ListDevices(ctx, accountID, activeOnly)
	if err != nil {
		return nil, storeErr(err)
	}
	return devices, nil
}

// RevokeDevice describes the revokedevice operation and its observable behavior.
//
// RevokeDevice deactivates the device; the row is kept. It reports false
// when the device does not belong to the account.
func (e *Engine) RevokeDevice(ctx context.Context, accountID, deviceID string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if err := e.store.SetDeviceActive(ctx, accountID, deviceID, false); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, nil
		}
		return false, storeErr(err)
	}
	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, auditEventDeviceRevoked, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"device_id": deviceID}
	})
	return true, nil
}

// TrustDevice sets or clears the trusted flag. It reports false when the
// device does not belong to the account.
func (e *Engine) TrustDevice(ctx context.Context, accountID, deviceID string, trusted bool) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if err := e.store.SetDeviceTrusted(ctx, accountID, deviceID, trusted); err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, nil
		}
		return false, storeErr(err)
	}
	e.emitAudit(ctx, auditEventDeviceTrustChanged, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"device_id": deviceID, "trusted": fmt.Sprint(trusted)}
	})
	return true, nil
}

// SecurityOverview describes the securityoverview operation and its observable behavior.
//
// SecurityOverview combines the two-factor status, the password policy info
// and device counts for the account.
func (e *Engine) SecurityOverview(ctx context.Context, accountID string) (*SecurityOverview, error) {
	info, err := e.PolicyInfo(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	devices, err := e.store.ListDevices(ctx, accountID, false)
	if err != nil {
		return nil, storeErr(err)
	}

	var counts DeviceCounts
	for _, d := range devices {
		counts.Total++
		if d.Trusted {
			counts.Trusted++
		}
		if d.Active {
			counts.Active++
		}
	}
	return &SecurityOverview{
		TwoFactor: twoFactorStatus(account),
		Password:  *info,
		Devices:   counts,
	}, nil
}

package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/fieldcrypt"
)

const (
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginLocked              = "login_locked"
	auditEventLoginPasswordExpired     = "login_password_expired"
	auditEventLegacyHashUpgraded       = "legacy_hash_upgraded"
	auditEventTokenRejected            = "token_rejected"
	auditEventTwoFactorRequired        = "two_factor_required"
	auditEventTwoFactorCodeSent        = "two_factor_code_sent"
	auditEventTwoFactorSuccess         = "two_factor_success"
	auditEventTwoFactorFailure         = "two_factor_failure"
	auditEventTwoFactorEnabled         = "two_factor_enabled"
	auditEventTwoFactorDisabled        = "two_factor_disabled"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeInvalidOld = "password_change_invalid_old"
	auditEventPasswordChangeFailure    = "password_change_failure"
	auditEventDeviceRegistered         = "device_registered"
	auditEventDeviceRevoked            = "device_revoked"
	auditEventDeviceTrustChanged       = "device_trust_changed"
	auditEventAccountCreated           = "account_created"
	auditEventAccountDeleted           = "account_deleted"
	auditEventAccountDisabled          = "account_disabled"
	auditEventIncidentResolved         = "incident_resolved"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenMalformed     AuditErrorCode = "token_malformed"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrPasswordExpired    AuditErrorCode = "password_expired"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrTwoFactorInvalid   AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorExpired   AuditErrorCode = "two_factor_expired"
	auditErrTwoFactorLimited   AuditErrorCode = "two_factor_rate_limited"
	auditErrDeliveryFailed     AuditErrorCode = "delivery_failed"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrLastAdministrator  AuditErrorCode = "last_administrator"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	username string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Username:  username,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrPasswordMismatch):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTwoFactorPending):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed):
		return auditErrTokenMalformed
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrPasswordExpired):
		return auditErrPasswordExpired
	case errors.Is(err, ErrValidation), errors.Is(err, ErrTwoFactorNoAddress):
		return auditErrValidation
	case errors.Is(err, ErrTwoFactorInvalid):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorExpired):
		return auditErrTwoFactorExpired
	case errors.Is(err, ErrTwoFactorRateLimited):
		return auditErrTwoFactorLimited
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrIncidentNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrLastAdministrator):
		return auditErrLastAdministrator
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrTwoFactorUnavailable),
		errors.Is(err, fieldcrypt.ErrDecryptionFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

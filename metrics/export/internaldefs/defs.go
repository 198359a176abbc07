package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported alongside the engine counters; its value comes
// from Engine.AuditDropped rather than the snapshot.
const (
	AuditDroppedName = "goguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Logins that issued a session token."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: goGuard.MetricLoginLocked, Name: "goguard_login_locked_total", Help: "Logins refused while the account was locked."},
	{ID: goGuard.MetricAccountLocked, Name: "goguard_account_locked_total", Help: "Account locks engaged by the failure threshold."},
	{ID: goGuard.MetricLoginPasswordExpired, Name: "goguard_login_password_expired_total", Help: "Logins stopped by an expired password."},
	{ID: goGuard.MetricLegacyHashUpgraded, Name: "goguard_legacy_hash_upgraded_total", Help: "Legacy password hashes re-hashed with bcrypt."},
	{ID: goGuard.MetricTokenAuthenticated, Name: "goguard_token_authenticated_total", Help: "Session tokens resolved to an account."},
	{ID: goGuard.MetricTokenRejected, Name: "goguard_token_rejected_total", Help: "Session tokens refused."},
	{ID: goGuard.MetricTokenAbsent, Name: "goguard_token_absent_total", Help: "Requests without a session token."},
	{ID: goGuard.MetricTwoFactorRequired, Name: "goguard_twofactor_required_total", Help: "Logins that stopped for a verification code."},
	{ID: goGuard.MetricTwoFactorCodeSent, Name: "goguard_twofactor_code_sent_total", Help: "Verification codes delivered."},
	{ID: goGuard.MetricTwoFactorDeliveryFailed, Name: "goguard_twofactor_delivery_failed_total", Help: "Verification codes the notifier could not deliver."},
	{ID: goGuard.MetricTwoFactorSuccess, Name: "goguard_twofactor_success_total", Help: "Verification codes accepted."},
	{ID: goGuard.MetricTwoFactorFailure, Name: "goguard_twofactor_failure_total", Help: "Verification codes wrong or expired."},
	{ID: goGuard.MetricTwoFactorRateLimited, Name: "goguard_twofactor_rate_limited_total", Help: "Verification checks refused by the attempt cap."},
	{ID: goGuard.MetricPasswordChangeSuccess, Name: "goguard_password_change_success_total", Help: "Completed password changes."},
	{ID: goGuard.MetricPasswordChangeInvalidOld, Name: "goguard_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: goGuard.MetricPasswordChangePolicyRejected, Name: "goguard_password_change_policy_rejected_total", Help: "Password changes refused by complexity rules."},
	{ID: goGuard.MetricPasswordChangeReuseRejected, Name: "goguard_password_change_reuse_rejected_total", Help: "Password changes refused by the history check."},
	{ID: goGuard.MetricDeviceRegistered, Name: "goguard_device_registered_total", Help: "First logins from a new device."},
	{ID: goGuard.MetricDeviceSuspicious, Name: "goguard_device_suspicious_total", Help: "Logins flagged by the device check."},
	{ID: goGuard.MetricDeviceRevoked, Name: "goguard_device_revoked_total", Help: "Device revocations."},
	{ID: goGuard.MetricIncidentRecorded, Name: "goguard_incident_recorded_total", Help: "Security incidents persisted."},
	{ID: goGuard.MetricIncidentPersistFailed, Name: "goguard_incident_persist_failed_total", Help: "Security incidents the store could not persist."},
	{ID: goGuard.MetricIncidentNotified, Name: "goguard_incident_notified_total", Help: "Incident alerts delivered."},
	{ID: goGuard.MetricIncidentNotifyFailed, Name: "goguard_incident_notify_failed_total", Help: "Incident alerts that failed to deliver."},
	{ID: goGuard.MetricAccountDisabled, Name: "goguard_account_disabled_total", Help: "Accounts disabled by brute force containment."},
	{ID: goGuard.MetricRequestThreatDetected, Name: "goguard_request_threat_detected_total", Help: "Requests with XSS, SQL injection or CSRF findings."},
	{ID: goGuard.MetricAuditDropped, Name: "goguard_audit_buffer_full_total", Help: "Audit emits that found the buffer full."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricAuthenticateLatency, Name: "goguard_authenticate_latency_seconds", Help: "Session token verification latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten a histogram into one gauge per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero filling missing
// buckets and ignoring extra ones.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

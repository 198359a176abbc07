package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that issued a session token.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credentials.
	MetricLoginFailure
	// MetricLoginLocked counts attempts refused while an account was locked.
	MetricLoginLocked
	// MetricAccountLocked counts locks engaged by the failure threshold.
	MetricAccountLocked
	// MetricLoginPasswordExpired counts logins stopped by an expired password.
	MetricLoginPasswordExpired
	// MetricLegacyHashUpgraded counts legacy hashes re-hashed with bcrypt at login.
	MetricLegacyHashUpgraded
	// MetricTokenAuthenticated counts tokens that resolved to an account.
	MetricTokenAuthenticated
	// MetricTokenRejected counts presented tokens that were refused.
	MetricTokenRejected
	// MetricTokenAbsent counts requests without a token.
	MetricTokenAbsent
	// MetricTwoFactorRequired counts logins that stopped for a verification code.
	MetricTwoFactorRequired
	// MetricTwoFactorCodeSent counts delivered verification codes.
	MetricTwoFactorCodeSent
	// MetricTwoFactorDeliveryFailed counts codes the notifier could not deliver.
	MetricTwoFactorDeliveryFailed
	// MetricTwoFactorSuccess counts accepted verification codes.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure counts wrong or expired verification codes.
	MetricTwoFactorFailure
	// MetricTwoFactorRateLimited counts checks refused by the attempt cap.
	MetricTwoFactorRateLimited
	// MetricPasswordChangeSuccess counts completed password changes.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeInvalidOld counts password changes with a wrong current password.
	MetricPasswordChangeInvalidOld
	// MetricPasswordChangePolicyRejected counts password changes refused by complexity rules.
	MetricPasswordChangePolicyRejected
	// MetricPasswordChangeReuseRejected counts password changes refused by the history check.
	MetricPasswordChangeReuseRejected
	// MetricDeviceRegistered counts first logins from a new device.
	MetricDeviceRegistered
	// MetricDeviceSuspicious counts logins the device check flagged.
	MetricDeviceSuspicious
	// MetricDeviceRevoked counts device revocations.
	MetricDeviceRevoked
	// MetricIncidentRecorded counts persisted incidents.
	MetricIncidentRecorded
	// MetricIncidentPersistFailed counts incidents the store could not persist.
	MetricIncidentPersistFailed
	// MetricIncidentNotified counts incident alerts delivered.
	MetricIncidentNotified
	// MetricIncidentNotifyFailed counts incident alerts that failed to deliver.
	MetricIncidentNotifyFailed
	// MetricAccountDisabled counts accounts disabled by brute-force containment.
	MetricAccountDisabled
	// MetricRequestThreatDetected counts requests with XSS, SQL injection or CSRF findings.
	MetricRequestThreatDetected
	// MetricAuditDropped counts audit events dropped by a full buffer.
	MetricAuditDropped
	// MetricAuthenticateLatency is the latency histogram of token verification.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters, padded to avoid false
// sharing, plus one latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg. A disabled Metrics ignores updates.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters record.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram records.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram. Only MetricAuthenticateLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and the histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

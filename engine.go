package goGuard

import (
	"io"
	"time"

	"github.com/MrEthical07/goGuard/fieldcrypt"
	"github.com/MrEthical07/goGuard/inspector"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/lockout"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/password"
	"github.com/rs/zerolog"
)

// Engine is the security core. It authenticates requests, runs the login
// path, manages two-factor codes, devices and password changes, and records
// incidents.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	store      Store
	hasher     *password.Hasher
	policy     password.Policy
	lockout    lockout.Policy
	challenges *stores.TwoFactorChallengeStore
	attempts   *limiters.TwoFactorLimiter
	pending    *jwt.Manager
	inspector  *inspector.Inspector
	encryptor  *fieldcrypt.Encryptor
	notifier   Notifier
	clock      Clock
	random     io.Reader
	logger     zerolog.Logger
	audit      *audit.Dispatcher
	metrics    *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close drains the audit dispatcher. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns a point-in-time copy of every counter and
// histogram. It is empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Inspector returns the request inspector used by the middleware.
func (e *Engine) Inspector() *inspector.Inspector { return e.inspector }

// Encryptor returns the field encryptor, or nil when no secret is configured.
func (e *Engine) Encryptor() *fieldcrypt.Encryptor { return e.encryptor }

// Logger returns the engine logger.
func (e *Engine) Logger() *zerolog.Logger { return &e.logger }

// PendingTokens returns the signer for short-lived purpose-bound tokens. The
// access gate reuses it for its cookie.
func (e *Engine) PendingTokens() *jwt.Manager { return e.pending }

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	return nil
}

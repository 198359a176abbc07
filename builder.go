package goGuard

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/MrEthical07/goGuard/fieldcrypt"
	"github.com/MrEthical07/goGuard/inspector"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/lockout"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/password"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder can be used for exactly one Build.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  Store

	notifier  Notifier
	clock     Clock
	random    io.Reader
	logger    *zerolog.Logger
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with DefaultConfig. Build fails until a store
// and a Redis client are supplied.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the durable store for accounts, devices and incidents.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis sets the TTL cache used for two-factor challenges and attempt
// counters. Both *redis.Client and *redis.ClusterClient are accepted.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithNotifier sets the email notifier. The default logs messages instead of
// sending them.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithClock overrides the wall clock.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom overrides the CSPRNG used for codes, tokens and nonces.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithLogger sets the logger. The default is zerolog.Nop().
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink sets the sink behind the async dispatcher. It has no effect
// unless Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the Authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build validates the configuration, wires every component and returns a
// ready Engine. The Builder cannot be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cfg,
		store:  b.store,
		clock:  b.clock,
		random: b.random,
		logger: zerolog.Nop(),
	}
	if engine.clock == nil {
		engine.clock = SystemClock{}
	}
	if engine.random == nil {
		engine.random = rand.Reader
	}
	if b.logger != nil {
		engine.logger = *b.logger
	}
	engine.logger = engine.logger.With().Str("component", "engine").Logger()

	engine.notifier = b.notifier
	if engine.notifier == nil {
		engine.notifier = notify.LogSender{Logger: engine.logger}
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(password.Config{
		Cost:       cfg.Password.BcryptCost,
		LegacySalt: cfg.Password.LegacySalt,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher
	engine.policy = cfg.passwordPolicy()
	engine.lockout = lockout.Policy{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	}

	// -------- TWO-FACTOR --------
	engine.challenges = stores.NewTwoFactorChallengeStore(b.redis, cfg.Cache.RedisPrefix)
	engine.attempts = limiters.NewTwoFactorLimiter(b.redis, cfg.Cache.RedisPrefix, limiters.TwoFactorLimiterConfig{
		MaxAttempts: cfg.TwoFactor.MaxAttempts,
		LockWindow:  cfg.TwoFactor.LockWindow,
	})

	signingKey := cloneBytes(cfg.TwoFactor.SigningKey)
	if len(signingKey) == 0 {
		signingKey = make([]byte, 32)
		if _, err := io.ReadFull(engine.random, signingKey); err != nil {
			return nil, fmt.Errorf("generate pending token key: %w", err)
		}
	}
	pending, err := jwt.NewManager(jwt.Config{
		Secret: signingKey,
		Issuer: "goguard",
		Now:    engine.clock.Now,
	})
	if err != nil {
		return nil, err
	}
	engine.pending = pending

	// -------- INSPECTION / ENCRYPTION --------
	engine.inspector = inspector.New(cfg.inspectorConfig())

	if cfg.Encryption.Secret != "" {
		enc, err := fieldcrypt.New(cfg.Encryption.Secret, engine.random)
		if err != nil {
			return nil, err
		}
		engine.encryptor = enc
	}

	// -------- AUDIT / METRICS --------
	engine.metrics = NewMetrics(cfg.Metrics)
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZerologSink(engine.logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     func(audit.Event) { engine.metricInc(MetricAuditDropped) },
		Logger:     &engine.logger,
	}, sink)

	b.built = true

	return engine, nil
}

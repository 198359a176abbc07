package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/inspector"
	"github.com/MrEthical07/goGuard/internal/lockout"
	"github.com/MrEthical07/goGuard/password"
)

// Config holds every tunable of the Engine. Build it from defaultConfig via
// New and override fields with WithConfig, or load it with internal/config.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Session    SessionConfig    `koanf:"session"`
	Lockout    LockoutConfig    `koanf:"lockout"`
	Password   PasswordConfig   `koanf:"password"`
	TwoFactor  TwoFactorConfig  `koanf:"two_factor"`
	Device     DeviceConfig     `koanf:"device"`
	Inspector  InspectorConfig  `koanf:"inspector"`
	Incident   IncidentConfig   `koanf:"incident"`
	Encryption EncryptionConfig `koanf:"encryption"`
	Audit      AuditConfig      `koanf:"audit"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Cache      CacheConfig      `koanf:"cache"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls opaque session tokens.
type SessionConfig struct {
	Lifetime time.Duration `koanf:"lifetime"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the consecutive-failure lock.
type LockoutConfig struct {
	Threshold int           `koanf:"threshold"`
	Duration  time.Duration `koanf:"duration"`
	// ReportSeverity is the severity of the BRUTE_FORCE_ATTEMPT incident
	// recorded when a lock engages. HIGH or above also disables the account.
	ReportSeverity Severity `koanf:"report_severity"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls hashing and the password lifecycle policy.
type PasswordConfig struct {
	BcryptCost           int      `koanf:"bcrypt_cost"`
	LegacySalt           string   `koanf:"legacy_salt"`
	UpgradeLegacyOnLogin bool     `koanf:"upgrade_legacy_on_login"`
	ExpireDays           int      `koanf:"expire_days"`
	WarnDays             int      `koanf:"warn_days"`
	HistoryDepth         int      `koanf:"history_depth"`
	MinLength            int      `koanf:"min_length"`
	MaxLength            int      `koanf:"max_length"`
	CommonPasswords      []string `koanf:"common_passwords"`
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls emailed one-time codes.
type TwoFactorConfig struct {
	CodeLength  int           `koanf:"code_length"`
	CodeTTL     time.Duration `koanf:"code_ttl"`
	MaxAttempts int           `koanf:"max_attempts"`
	LockWindow  time.Duration `koanf:"lock_window"`
	// PendingTokenTTL bounds the temporary token returned with login code 3.
	PendingTokenTTL time.Duration `koanf:"pending_token_ttl"`
	// SigningKey signs pending tokens (HS256, at least 32 bytes). Empty
	// means a random per-process key.
	SigningKey []byte `koanf:"signing_key"`
	Subject    string `koanf:"subject"`
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig controls device tracking at login.
type DeviceConfig struct {
	Enabled bool `koanf:"enabled"`
	// ReportSuspicious records a LOW SUSPICIOUS_ACTIVITY incident for
	// logins the device check flags.
	ReportSuspicious bool `koanf:"report_suspicious"`
}

/*
====================================
INSPECTOR CONFIG
====================================
*/

// InspectorConfig controls request inspection.
type InspectorConfig struct {
	TrustedOrigins       []string `koanf:"trusted_origins"`
	AdminPathPrefix      string   `koanf:"admin_path_prefix"`
	SubstringOriginMatch bool     `koanf:"substring_origin_match"`
	MaxBodyBytes         int64    `koanf:"max_body_bytes"`
}

/*
====================================
INCIDENT CONFIG
====================================
*/

// IncidentConfig controls incident notification.
type IncidentConfig struct {
	// SecurityTeam receives HIGH and CRITICAL alerts along with administrators.
	SecurityTeam  []string      `koanf:"security_team"`
	NotifyTimeout time.Duration `koanf:"notify_timeout"`
	DrillIP       string        `koanf:"drill_ip"`
}

/*
====================================
ENCRYPTION CONFIG
====================================
*/

// EncryptionConfig keys the field encryptor. Empty disables it.
type EncryptionConfig struct {
	Secret string `koanf:"secret"`
}

/*
====================================
AUDIT / METRICS / CACHE
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

// CacheConfig controls the Redis TTL cache.
type CacheConfig struct {
	RedisPrefix string `koanf:"redis_prefix"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	ic := inspector.DefaultConfig()
	return Config{
		Session: SessionConfig{
			Lifetime: 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold:      lockout.DefaultThreshold,
			Duration:       lockout.DefaultDuration,
			ReportSeverity: SeverityMedium,
		},
		Password: PasswordConfig{
			BcryptCost:           password.DefaultCost,
			LegacySalt:           password.DefaultLegacySalt,
			UpgradeLegacyOnLogin: true,
			ExpireDays:           password.DefaultExpireDays,
			WarnDays:             password.DefaultWarnDays,
			HistoryDepth:         password.DefaultHistoryDepth,
			MinLength:            password.DefaultMinLength,
			MaxLength:            password.DefaultMaxLength,
		},
		TwoFactor: TwoFactorConfig{
			CodeLength:      6,
			CodeTTL:         300 * time.Second,
			MaxAttempts:     5,
			LockWindow:      300 * time.Second,
			PendingTokenTTL: 10 * time.Minute,
			Subject:         "[Security] Your sign-in verification code",
		},
		Device: DeviceConfig{
			Enabled:          true,
			ReportSuspicious: false,
		},
		Inspector: InspectorConfig{
			TrustedOrigins:  ic.TrustedOrigins,
			AdminPathPrefix: ic.AdminPathPrefix,
			MaxBodyBytes:    ic.MaxBodyBytes,
		},
		Incident: IncidentConfig{
			NotifyTimeout: 15 * time.Second,
			DrillIP:       "192.168.1.100",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.TwoFactor.SigningKey = cloneBytes(cfg.TwoFactor.SigningKey)
	out.Inspector.TrustedOrigins = append([]string(nil), cfg.Inspector.TrustedOrigins...)
	out.Incident.SecurityTeam = append([]string(nil), cfg.Incident.SecurityTeam...)
	out.Password.CommonPasswords = append([]string(nil), cfg.Password.CommonPasswords...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c *Config) passwordPolicy() password.Policy {
	p := password.DefaultPolicy()
	p.ExpireDays = c.Password.ExpireDays
	p.WarnDays = c.Password.WarnDays
	p.HistoryDepth = c.Password.HistoryDepth
	p.MinLength = c.Password.MinLength
	p.MaxLength = c.Password.MaxLength
	if len(c.Password.CommonPasswords) > 0 {
		p.CommonPasswords = c.Password.CommonPasswords
	}
	return p
}

func (c *Config) inspectorConfig() inspector.Config {
	ic := inspector.DefaultConfig()
	ic.TrustedOrigins = c.Inspector.TrustedOrigins
	ic.AdminPathPrefix = c.Inspector.AdminPathPrefix
	ic.SubstringOriginMatch = c.Inspector.SubstringOriginMatch
	if c.Inspector.MaxBodyBytes > 0 {
		ic.MaxBodyBytes = c.Inspector.MaxBodyBytes
	}
	return ic
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Session
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if !c.Lockout.ReportSeverity.Valid() {
		return errors.New("Lockout ReportSeverity must be LOW, MEDIUM, HIGH or CRITICAL")
	}

	// Password
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return errors.New("Password BcryptCost must be between 4 and 31")
	}
	if c.Password.ExpireDays <= 0 {
		return errors.New("Password ExpireDays must be > 0")
	}
	if c.Password.WarnDays < 0 || c.Password.WarnDays >= c.Password.ExpireDays {
		return errors.New("Password WarnDays must be >= 0 and < ExpireDays")
	}
	if c.Password.HistoryDepth < 0 {
		return errors.New("Password HistoryDepth must be >= 0")
	}
	if c.Password.MinLength < 1 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MinLength must be >= 1 and <= MaxLength")
	}

	// Two-factor
	if c.TwoFactor.CodeLength < 4 || c.TwoFactor.CodeLength > 10 {
		return errors.New("TwoFactor CodeLength must be between 4 and 10")
	}
	if c.TwoFactor.CodeTTL <= 0 {
		return errors.New("TwoFactor CodeTTL must be > 0")
	}
	if c.TwoFactor.MaxAttempts <= 0 {
		return errors.New("TwoFactor MaxAttempts must be > 0")
	}
	if c.TwoFactor.LockWindow <= 0 {
		return errors.New("TwoFactor LockWindow must be > 0")
	}
	if c.TwoFactor.PendingTokenTTL <= 0 {
		return errors.New("TwoFactor PendingTokenTTL must be > 0")
	}
	if len(c.TwoFactor.SigningKey) > 0 && len(c.TwoFactor.SigningKey) < 32 {
		return errors.New("TwoFactor SigningKey must be at least 32 bytes")
	}

	// Inspector
	if c.Inspector.AdminPathPrefix == "" || c.Inspector.AdminPathPrefix[0] != '/' {
		return errors.New("Inspector AdminPathPrefix must start with /")
	}
	if c.Inspector.MaxBodyBytes < 0 {
		return errors.New("Inspector MaxBodyBytes must be >= 0")
	}

	// Incident
	if c.Incident.NotifyTimeout <= 0 {
		return errors.New("Incident NotifyTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

// Package config loads the goguard-server configuration from struct
// defaults, an optional YAML file and GOGUARD_ environment variables, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/internal/logging"
	"github.com/MrEthical07/goGuard/notify"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nesting levels, so GOGUARD_GUARD__TWO_FACTOR__CODE_LENGTH sets
// guard.two_factor.code_length.
const EnvPrefix = "GOGUARD_"

// PathEnvVar names a YAML file to load instead of the default search paths.
const PathEnvVar = "GOGUARD_CONFIG"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{"goguard.yaml", "goguard.yml", "/etc/goguard/config.yaml"}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig      `koanf:"server"`
	Store     StoreConfig       `koanf:"store"`
	Redis     RedisConfig       `koanf:"redis"`
	SMTP      notify.SMTPConfig `koanf:"smtp"`
	Breaker   BreakerConfig     `koanf:"breaker"`
	Logging   logging.Config    `koanf:"logging"`
	Gate      GateConfig        `koanf:"gate"`
	Monitor   MonitorConfig     `koanf:"monitor"`
	Bootstrap BootstrapConfig   `koanf:"bootstrap"`
	Guard     goGuard.Config    `koanf:"guard"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr             string        `koanf:"addr" validate:"required"`
	ReadTimeout      time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout     time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	LoginPerHour     int           `koanf:"login_per_hour" validate:"gte=0"`
	MetricsPath      string        `koanf:"metrics_path" validate:"omitempty,startswith=/"`
	APIPrefix        string        `koanf:"api_prefix" validate:"startswith=/"`
	TrustForwardedIP bool          `koanf:"trust_forwarded_ip"`
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	Driver   string `koanf:"driver" validate:"oneof=memory postgres"`
	DSN      string `koanf:"dsn" validate:"required_if=Driver postgres"`
	MaxConns int32  `koanf:"max_conns" validate:"gte=0"`
	Migrate  bool   `koanf:"migrate"`
}

// RedisConfig addresses the TTL cache.
type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
}

// BreakerConfig tunes the circuit breaker around the SMTP relay.
type BreakerConfig struct {
	// Failures opens the circuit after this many consecutive failures.
	Failures uint32        `koanf:"failures"`
	Timeout  time.Duration `koanf:"timeout" validate:"gte=0"`
}

// GateConfig configures the admin access gate. An empty PathPrefix disables it.
type GateConfig struct {
	PathPrefix     string        `koanf:"path_prefix" validate:"omitempty,startswith=/"`
	AllowedIPs     []string      `koanf:"allowed_ips" validate:"dive,ip"`
	AccessPassword string        `koanf:"access_password"`
	PublicPaths    []string      `koanf:"public_paths"`
	TTL            time.Duration `koanf:"ttl" validate:"gte=0"`
	SecureCookie   bool          `koanf:"secure_cookie"`
}

// MonitorConfig configures the response monitor.
type MonitorConfig struct {
	Enabled           bool     `koanf:"enabled"`
	SensitivePrefixes []string `koanf:"sensitive_prefixes"`
}

// BootstrapConfig creates the first administrator when no account with
// that username exists.
type BootstrapConfig struct {
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password" validate:"required_with=AdminUsername"`
	AdminEmail    string `koanf:"admin_email" validate:"omitempty,email"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			LoginPerHour:    10,
			MetricsPath:     "/metrics",
			APIPrefix:       "/admin",
		},
		Store: StoreConfig{
			Driver:  "memory",
			Migrate: true,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		SMTP: notify.SMTPConfig{
			Port:    587,
			UseTLS:  true,
			Timeout: 10 * time.Second,
		},
		Breaker: BreakerConfig{
			Failures: 5,
			Timeout:  time.Minute,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Gate: GateConfig{
			TTL: time.Hour,
		},
		Monitor: MonitorConfig{
			Enabled:           true,
			SensitivePrefixes: []string{"/admin/user", "/admin/backup", "/admin/system"},
		},
		Guard: goGuard.DefaultConfig(),
	}
}

// Load reads the configuration. An empty path searches PathEnvVar and then
// DefaultPaths; a missing file is not an error unless path was given.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envKey maps GOGUARD_SERVER__ADDR to server.addr.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// listPaths hold []string fields that environment variables set as
// comma-separated strings.
var listPaths = []string{
	"server.cors_origins",
	"gate.allowed_ips",
	"gate.public_paths",
	"monitor.sensitive_prefixes",
	"guard.password.common_passwords",
	"guard.inspector.trusted_origins",
	"guard.incident.security_team",
}

func splitLists(k *koanf.Koanf) error {
	for _, path := range listPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the service fields with struct tags and the engine
// configuration with goGuard.Config.Validate.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Gate.AccessPassword != "" && c.Gate.PathPrefix == "" {
		return errors.New("gate.access_password requires gate.path_prefix")
	}
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	return nil
}

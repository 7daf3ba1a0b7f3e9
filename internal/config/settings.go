package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MinSigningKeyLen is the shortest accepted HMAC signing key, in bytes.
const MinSigningKeyLen = 32

// DefaultPublicRoutes are reachable without a session token. They are still
// rate limited.
var DefaultPublicRoutes = []string{
	"/api/auth/**",
	"/api/cough/health",
	"/ws/**",
	"/error",
	"/healthz",
	"/readyz",
	"/openapi.json",
}

// Settings is the effective runtime configuration, assembled by viper from
// defaults, airea.yaml, AIREA_* environment variables and command flags.
type Settings struct {
	Server    ServerSettings    `mapstructure:"server"`
	Database  DatabaseSettings  `mapstructure:"database"`
	Auth      AuthSettings      `mapstructure:"auth"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Log       LogSettings       `mapstructure:"log"`
}

// ServerSettings controls the HTTP listener.
type ServerSettings struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseSettings selects the device store backend. An empty DSN with the
// sqlite driver means <data-dir>/airea.db.
type DatabaseSettings struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// AuthSettings controls token signing and key hashing.
type AuthSettings struct {
	SigningKey         string            `mapstructure:"signing_key"`
	SigningKeyID       string            `mapstructure:"signing_key_id"`
	RetiredSigningKeys map[string]string `mapstructure:"retired_signing_keys"`
	SessionTTL         time.Duration     `mapstructure:"session_ttl"`
	APIKeyTTL          time.Duration     `mapstructure:"api_key_ttl"`
	HashAlgorithm      string            `mapstructure:"hash_algorithm"`
	HashCost           int               `mapstructure:"hash_cost"`
	DeviceIDPattern    string            `mapstructure:"device_id_pattern"`
	PublicRoutes       []string          `mapstructure:"public_routes"`
}

// RateLimitSettings controls admission throttling.
type RateLimitSettings struct {
	Capacity           int           `mapstructure:"capacity"`
	Interval           time.Duration `mapstructure:"interval"`
	IdleTTL            time.Duration `mapstructure:"idle_ttl"`
	KeyIssuancePerHour int           `mapstructure:"key_issuance_per_hour"`
}

// LogSettings controls log output.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every known key with its default value. Keys without
// a default are invisible to AutomaticEnv during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "")

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.signing_key_id", "primary")
	v.SetDefault("auth.retired_signing_keys", map[string]string{})
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.api_key_ttl", "8760h")
	v.SetDefault("auth.hash_algorithm", "bcrypt")
	v.SetDefault("auth.hash_cost", 10)
	v.SetDefault("auth.device_id_pattern", `^ESP32_[A-Z0-9_]+$`)
	v.SetDefault("auth.public_routes", DefaultPublicRoutes)

	v.SetDefault("rate_limit.capacity", 100)
	v.SetDefault("rate_limit.interval", "1m")
	v.SetDefault("rate_limit.idle_ttl", "10m")
	v.SetDefault("rate_limit.key_issuance_per_hour", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	// viper lower-cases map keys, so key IDs are compared lower-case.
	s.Auth.SigningKeyID = strings.ToLower(s.Auth.SigningKeyID)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks value ranges. A missing signing key is not an error here;
// the serve command decides whether a development key may stand in.
func (s *Settings) Validate() error {
	var errs []error

	switch s.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.driver: %w: %q", ErrUnsupportedDriver, s.Database.Driver))
	}
	if s.Database.Driver != DriverSQLite && s.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", s.Database.Driver))
	}

	if s.Auth.SigningKey != "" && len(s.Auth.SigningKey) < MinSigningKeyLen {
		errs = append(errs, fmt.Errorf("auth.signing_key must be at least %d bytes", MinSigningKeyLen))
	}
	for kid, key := range s.Auth.RetiredSigningKeys {
		if len(key) < MinSigningKeyLen {
			errs = append(errs, fmt.Errorf("auth.retired_signing_keys.%s must be at least %d bytes", kid, MinSigningKeyLen))
		}
		if kid == s.Auth.SigningKeyID {
			errs = append(errs, fmt.Errorf("auth.retired_signing_keys.%s collides with auth.signing_key_id", kid))
		}
	}
	if s.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("auth.session_ttl must be positive"))
	}
	if s.Auth.APIKeyTTL <= 0 {
		errs = append(errs, errors.New("auth.api_key_ttl must be positive"))
	}
	switch s.Auth.HashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		errs = append(errs, fmt.Errorf("auth.hash_algorithm: unknown algorithm %q", s.Auth.HashAlgorithm))
	}
	if s.Auth.DeviceIDPattern != "" {
		if _, err := regexp.Compile(s.Auth.DeviceIDPattern); err != nil {
			errs = append(errs, fmt.Errorf("auth.device_id_pattern: %w", err))
		}
	}

	if s.RateLimit.Capacity <= 0 {
		errs = append(errs, errors.New("rate_limit.capacity must be positive"))
	}
	if s.RateLimit.Interval <= 0 {
		errs = append(errs, errors.New("rate_limit.interval must be positive"))
	}
	if s.RateLimit.IdleTTL < 0 {
		errs = append(errs, errors.New("rate_limit.idle_ttl must not be negative"))
	}

	switch s.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", s.Log.Format))
	}

	return errors.Join(errs...)
}

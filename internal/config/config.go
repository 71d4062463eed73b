// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level (debug/info/warn/error); empty means info.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// DatabaseURL is the Postgres DSN for the read-only capability and known-device
	// store and the audit mirror; empty disables all database access.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SessionTTL is the session lifetime (e.g. "30m").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// MaxSessionsPerUser is the active-session cap per user; the oldest-by-activity
	// session is evicted when the cap is exceeded.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// SessionSweepInterval is how often the expiry sweep runs (e.g. "60s").
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`
	// SessionTokenSecret is the HMAC secret for signed session tokens. Required in production.
	SessionTokenSecret string `mapstructure:"SESSION_TOKEN_SECRET"`
	// SessionTokenIssuer is the iss claim on session tokens.
	SessionTokenIssuer string `mapstructure:"SESSION_TOKEN_ISSUER"`
	// IPHashSalt salts hashed IP addresses; raw addresses are never stored.
	IPHashSalt string `mapstructure:"IP_HASH_SALT"`

	// BruteForceThreshold is the failure count per window that raises a BRUTE_FORCE alert.
	BruteForceThreshold int `mapstructure:"BRUTE_FORCE_THRESHOLD"`
	// BruteForceBlockThreshold is the failure count per window that auto-blocks the source IP.
	BruteForceBlockThreshold int `mapstructure:"BRUTE_FORCE_BLOCK_THRESHOLD"`
	// BruteForceWindow is the rapid-failure detector window (e.g. "5m").
	BruteForceWindow string `mapstructure:"BRUTE_FORCE_WINDOW"`
	// MultiSourceThreshold is the distinct-IP count per window that raises a SUSPICIOUS_LOGIN alert.
	MultiSourceThreshold int `mapstructure:"MULTI_SOURCE_THRESHOLD"`
	// MultiSourceWindow is the distinct-source detector window (e.g. "30m").
	MultiSourceWindow string `mapstructure:"MULTI_SOURCE_WINDOW"`
	// OffHoursThreshold is the attempt count per window inside the off-hours band that raises an alert.
	OffHoursThreshold int `mapstructure:"OFF_HOURS_THRESHOLD"`
	// OffHoursWindow is the off-hours detector window (e.g. "60m").
	OffHoursWindow string `mapstructure:"OFF_HOURS_WINDOW"`
	// OffHoursStart and OffHoursEnd bound the local-time band treated as unusual (hours 0-23).
	OffHoursStart int `mapstructure:"OFF_HOURS_START"`
	OffHoursEnd   int `mapstructure:"OFF_HOURS_END"`
	// RateLimitThreshold is the total attempt count per window that raises a RATE_LIMIT_EXCEEDED alert.
	RateLimitThreshold int `mapstructure:"RATE_LIMIT_THRESHOLD"`
	// RateLimitWindow is the rate-limit detector window (e.g. "5m").
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`
	// StalledAttackThreshold is the trailing-hour failure count flagged by the periodic scan.
	StalledAttackThreshold int `mapstructure:"STALLED_ATTACK_THRESHOLD"`

	// AuditMaxEntries caps the in-memory audit ring; oldest entries are dropped first.
	AuditMaxEntries int `mapstructure:"AUDIT_MAX_ENTRIES"`
	// AuditRetentionDays is the cleanup horizon for audit entries.
	AuditRetentionDays int `mapstructure:"AUDIT_RETENTION_DAYS"`
	// AuditConsoleSink mirrors audit entries to the application log when true.
	AuditConsoleSink bool `mapstructure:"AUDIT_CONSOLE_SINK"`
	// AuditFilePath mirrors audit entries to a JSON-lines file when non-empty.
	AuditFilePath string `mapstructure:"AUDIT_FILE_PATH"`

	// AlertKafkaBrokers is a comma-separated broker list; empty disables alert notifications.
	AlertKafkaBrokers string `mapstructure:"ALERT_KAFKA_BROKERS"`
	// AlertKafkaTopic is the Kafka topic CRITICAL/HIGH alerts are published to.
	AlertKafkaTopic string `mapstructure:"ALERT_KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC endpoint for metrics/traces; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "60s")
	v.SetDefault("SESSION_TOKEN_SECRET", "")
	v.SetDefault("SESSION_TOKEN_ISSUER", "atg-core")
	v.SetDefault("IP_HASH_SALT", "atg")
	v.SetDefault("BRUTE_FORCE_THRESHOLD", 10)
	v.SetDefault("BRUTE_FORCE_BLOCK_THRESHOLD", 20)
	v.SetDefault("BRUTE_FORCE_WINDOW", "5m")
	v.SetDefault("MULTI_SOURCE_THRESHOLD", 3)
	v.SetDefault("MULTI_SOURCE_WINDOW", "30m")
	v.SetDefault("OFF_HOURS_THRESHOLD", 5)
	v.SetDefault("OFF_HOURS_WINDOW", "60m")
	v.SetDefault("OFF_HOURS_START", 2)
	v.SetDefault("OFF_HOURS_END", 6)
	v.SetDefault("RATE_LIMIT_THRESHOLD", 30)
	v.SetDefault("RATE_LIMIT_WINDOW", "5m")
	v.SetDefault("STALLED_ATTACK_THRESHOLD", 15)
	v.SetDefault("AUDIT_MAX_ENTRIES", 10000)
	v.SetDefault("AUDIT_RETENTION_DAYS", 90)
	v.SetDefault("AUDIT_CONSOLE_SINK", false)
	v.SetDefault("AUDIT_FILE_PATH", "")
	v.SetDefault("ALERT_KAFKA_BROKERS", "")
	v.SetDefault("ALERT_KAFKA_TOPIC", "atg-alerts")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.MaxSessionsPerUser <= 0 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be positive")
	}
	if cfg.BruteForceBlockThreshold < cfg.BruteForceThreshold {
		return nil, errors.New("config: BRUTE_FORCE_BLOCK_THRESHOLD must be >= BRUTE_FORCE_THRESHOLD")
	}
	if cfg.OffHoursStart < 0 || cfg.OffHoursStart > 23 || cfg.OffHoursEnd < 0 || cfg.OffHoursEnd > 23 {
		return nil, errors.New("config: OFF_HOURS_START and OFF_HOURS_END must be hours 0-23")
	}
	if cfg.AuditMaxEntries <= 0 {
		return nil, errors.New("config: AUDIT_MAX_ENTRIES must be positive")
	}
	if cfg.Env == "production" && cfg.SessionTokenSecret == "" {
		return nil, errors.New("config: SESSION_TOKEN_SECRET must be set when APP_ENV=production")
	}

	for _, d := range []struct {
		name, val string
	}{
		{"SESSION_TTL", cfg.SessionTTL},
		{"SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval},
		{"BRUTE_FORCE_WINDOW", cfg.BruteForceWindow},
		{"MULTI_SOURCE_WINDOW", cfg.MultiSourceWindow},
		{"OFF_HOURS_WINDOW", cfg.OffHoursWindow},
		{"RATE_LIMIT_WINDOW", cfg.RateLimitWindow},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return nil, fmt.Errorf("config: %s is not a valid duration: %w", d.name, err)
		}
	}

	return &cfg, nil
}

// SessionTTLDuration parses SessionTTL. Returns 30m if unset or invalid.
func (c *Config) SessionTTLDuration() time.Duration {
	return duration(c.SessionTTL, 30*time.Minute)
}

// SweepInterval parses SessionSweepInterval. Returns 60s if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return duration(c.SessionSweepInterval, 60*time.Second)
}

// BruteForceWindowDuration parses BruteForceWindow. Returns 5m if unset or invalid.
func (c *Config) BruteForceWindowDuration() time.Duration {
	return duration(c.BruteForceWindow, 5*time.Minute)
}

// MultiSourceWindowDuration parses MultiSourceWindow. Returns 30m if unset or invalid.
func (c *Config) MultiSourceWindowDuration() time.Duration {
	return duration(c.MultiSourceWindow, 30*time.Minute)
}

// OffHoursWindowDuration parses OffHoursWindow. Returns 60m if unset or invalid.
func (c *Config) OffHoursWindowDuration() time.Duration {
	return duration(c.OffHoursWindow, 60*time.Minute)
}

// RateLimitWindowDuration parses RateLimitWindow. Returns 5m if unset or invalid.
func (c *Config) RateLimitWindowDuration() time.Duration {
	return duration(c.RateLimitWindow, 5*time.Minute)
}

// AlertKafkaBrokersList returns broker addresses from the comma-separated config.
// Used to decide if alert notifications are enabled (non-empty list) and to create the producer.
func (c *Config) AlertKafkaBrokersList() []string {
	if c == nil || c.AlertKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AlertKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

// Package config loads authcore configuration from defaults, a YAML file,
// command-line flags and a few environment fallbacks, in that order.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/kyonggi-board/authcore/internal/auth"
	"github.com/kyonggi-board/authcore/internal/auth/redisstore"
	"github.com/kyonggi-board/authcore/internal/mail"
	"github.com/kyonggi-board/authcore/internal/store"
	"github.com/kyonggi-board/authcore/internal/xdg"
)

// Environment fallbacks for secrets that should not live in the config file.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvJWTSecret   = "AUTHCORE_JWT_SECRET"
)

// Mail delivery modes.
const (
	MailModeLog  = "log"
	MailModeSMTP = "smtp"
)

// Config is the full authcore configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Otp      OtpConfig      `koanf:"otp"`
	JWT      JWTConfig      `koanf:"jwt"`
	Session  SessionConfig  `koanf:"session"`
	Mail     MailConfig     `koanf:"mail"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// RedisConfig configures the refresh reuse tracker. An empty Addr disables it.
type RedisConfig struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	KeyPrefix   string        `koanf:"key_prefix"`
	ReuseWindow time.Duration `koanf:"reuse_window"`
}

// OtpConfig configures signup codes.
type OtpConfig struct {
	TTL            time.Duration `koanf:"ttl"`
	ResendCooldown time.Duration `koanf:"resend_cooldown"`
	DailyLimit     int           `koanf:"daily_limit"`
	MaxFailures    int           `koanf:"max_failures"`
	AllowedDomain  string        `koanf:"allowed_domain"`
	TimeZone       string        `koanf:"time_zone"`
}

// JWTConfig configures access tokens.
type JWTConfig struct {
	Secret    string        `koanf:"secret"`
	Issuer    string        `koanf:"issuer"`
	AccessTTL time.Duration `koanf:"access_ttl"`
}

// SessionConfig configures refresh sessions.
type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	RememberMeTTL time.Duration `koanf:"remember_me_ttl"`
}

// MailConfig configures OTP delivery.
type MailConfig struct {
	Mode           string        `koanf:"mode" jsonschema:"enum=log,enum=smtp"`
	RevealCode     bool          `koanf:"reveal_code"`
	Workers        int           `koanf:"workers"`
	QueueSize      int           `koanf:"queue_size"`
	Retries        uint64        `koanf:"retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`
	SendTimeout    time.Duration `koanf:"send_timeout"`
	SMTP           SMTPConfig    `koanf:"smtp"`
}

// SMTPConfig configures the SMTP relay used in smtp mode.
type SMTPConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	StartTLS bool          `koanf:"starttls"`
	Timeout  time.Duration `koanf:"timeout"`
}

// MetricsConfig configures the metrics and health endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level"`
}

func defaults() map[string]any {
	retry := mail.DefaultRetryPolicy()
	return map[string]any{
		"database.max_conns":         int32(10),
		"database.min_conns":         int32(0),
		"database.max_conn_lifetime": time.Hour,
		"database.connect_timeout":   5 * time.Second,

		"redis.key_prefix":   "authcore:",
		"redis.reuse_window": redisstore.DefaultReuseWindow,

		"otp.ttl":             auth.DefaultOtpTTL,
		"otp.resend_cooldown": auth.DefaultOtpResendCooldown,
		"otp.daily_limit":     auth.DefaultOtpDailySendLimit,
		"otp.max_failures":    auth.DefaultOtpMaxFailures,
		"otp.allowed_domain":  auth.DefaultAllowedDomain,
		"otp.time_zone":       "Asia/Seoul",

		"jwt.issuer":     "kyonggi-board",
		"jwt.access_ttl": auth.DefaultAccessTokenTTL,

		"session.ttl":             auth.DefaultSessionTTL,
		"session.remember_me_ttl": auth.DefaultRememberMeTTL,

		"mail.mode":             MailModeLog,
		"mail.reveal_code":      false,
		"mail.workers":          2,
		"mail.queue_size":       64,
		"mail.retries":          retry.MaxRetries,
		"mail.retry_base_delay": retry.BaseDelay,
		"mail.retry_max_delay":  retry.MaxDelay,
		"mail.send_timeout":     30 * time.Second,
		"mail.smtp.port":        587,
		"mail.smtp.starttls":    true,
		"mail.smtp.timeout":     10 * time.Second,

		"metrics.addr": "127.0.0.1:9100",

		"log.format": "json",
		"log.level":  "info",
	}
}

// flagKeys maps command-line flags to config keys. Flags not listed here
// are ignored by Load.
var flagKeys = map[string]string{
	"database-url":  "database.url",
	"redis-addr":    "redis.addr",
	"mail-mode":     "mail.mode",
	"metrics-addr":  "metrics.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"otp-time-zone": "otp.time_zone",
}

// Load builds a Config. path names a YAML file; when empty the XDG default
// is used if present. flags may be nil. Only flags the user changed
// override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path == "" {
		path = xdg.DefaultConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := validateFileAt(path); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	cfg.applyEnv(os.Getenv)
	return &cfg, nil
}

// validateFileAt rejects unknown keys and mistyped values that koanf would
// silently ignore or coerce.
func validateFileAt(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator supplied
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateFile(data); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

// applyEnv fills secrets left empty by file and flags.
func (c *Config) applyEnv(getenv func(string) string) {
	if c.Database.URL == "" {
		c.Database.URL = getenv(EnvDatabaseURL)
	}
	if c.JWT.Secret == "" {
		c.JWT.Secret = getenv(EnvJWTSecret)
	}
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks everything serve needs. Migrations only need
// ValidateDatabase.
func (c *Config) Validate() error {
	if err := c.ValidateDatabase(); err != nil {
		return err
	}
	switch {
	case c.Otp.TTL <= 0:
		return invalid("otp.ttl", "otp ttl must be positive")
	case c.Otp.ResendCooldown < 0:
		return invalid("otp.resend_cooldown", "resend cooldown cannot be negative")
	case c.Otp.DailyLimit < 1:
		return invalid("otp.daily_limit", "daily limit must be at least 1")
	case c.Otp.MaxFailures < 1:
		return invalid("otp.max_failures", "max failures must be at least 1")
	case strings.TrimSpace(c.Otp.AllowedDomain) == "":
		return invalid("otp.allowed_domain", "allowed domain is required")
	case c.JWT.AccessTTL <= 0:
		return invalid("jwt.access_ttl", "access token ttl must be positive")
	case c.JWT.Issuer == "":
		return invalid("jwt.issuer", "issuer is required")
	case len(c.JWT.Secret) < auth.MinSigningSecretBytes:
		return invalid("jwt.secret", "jwt secret must be at least %d bytes", auth.MinSigningSecretBytes)
	case c.Session.TTL <= 0:
		return invalid("session.ttl", "session ttl must be positive")
	case c.Session.RememberMeTTL <= 0:
		return invalid("session.remember_me_ttl", "remember-me ttl must be positive")
	case c.Mail.Workers < 1:
		return invalid("mail.workers", "at least one mail worker is required")
	case c.Mail.QueueSize < 1:
		return invalid("mail.queue_size", "mail queue size must be positive")
	case c.Mail.RetryBaseDelay <= 0:
		return invalid("mail.retry_base_delay", "retry base delay must be positive")
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}

	switch c.Mail.Mode {
	case MailModeLog:
	case MailModeSMTP:
		if c.Mail.SMTP.Host == "" {
			return invalid("mail.smtp.host", "smtp host is required in smtp mode")
		}
		if c.Mail.SMTP.From == "" {
			return invalid("mail.smtp.from", "sender address is required in smtp mode")
		}
	default:
		return invalid("mail.mode", "mail mode must be %q or %q, got %q", MailModeLog, MailModeSMTP, c.Mail.Mode)
	}

	if _, err := time.LoadLocation(c.Otp.TimeZone); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "otp.time_zone").Wrapf(err, "unknown time zone %q", c.Otp.TimeZone)
	}
	return nil
}

// ValidateDatabase checks the database settings alone.
func (c *Config) ValidateDatabase() error {
	switch {
	case c.Database.URL == "":
		return invalid("database.url", "database url is required (set %s)", EnvDatabaseURL)
	case c.Database.MaxConns < 0 || c.Database.MinConns < 0:
		return invalid("database.max_conns", "pool sizes cannot be negative")
	case c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns:
		return invalid("database.min_conns", "min conns cannot exceed max conns")
	}
	return nil
}

// OtpPolicy returns the OTP limits with days counted in the configured zone.
func (c *Config) OtpPolicy() (auth.OtpPolicy, error) {
	loc, err := time.LoadLocation(c.Otp.TimeZone)
	if err != nil {
		return auth.OtpPolicy{}, oops.Code("CONFIG_INVALID").With("field", "otp.time_zone").Wrap(err)
	}
	return auth.OtpPolicy{
		TTL:            c.Otp.TTL,
		ResendCooldown: c.Otp.ResendCooldown,
		DailySendLimit: c.Otp.DailyLimit,
		MaxFailures:    c.Otp.MaxFailures,
		Location:       loc,
	}, nil
}

// SessionTTLs returns the refresh session lifetimes.
func (c *Config) SessionTTLs() auth.SessionTTLs {
	return auth.SessionTTLs{Session: c.Session.TTL, RememberMe: c.Session.RememberMeTTL}
}

// PoolOptions returns the pgx pool settings.
func (c *Config) PoolOptions() store.PoolOptions {
	return store.PoolOptions{
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
		ConnectTimeout:  c.Database.ConnectTimeout,
	}
}

// SMTP returns the sender settings for smtp mode.
func (c *Config) SMTP() mail.SMTPConfig {
	s := c.Mail.SMTP
	return mail.SMTPConfig{
		Host:         s.Host,
		Port:         s.Port,
		Username:     s.Username,
		Password:     s.Password,
		From:         s.From,
		StartTLS:     s.StartTLS,
		Timeout:      s.Timeout,
		CodeValidity: c.Otp.TTL,
	}
}

// RetryPolicy returns the mail retry settings.
func (c *Config) RetryPolicy() mail.RetryPolicy {
	return mail.RetryPolicy{
		MaxRetries: c.Mail.Retries,
		BaseDelay:  c.Mail.RetryBaseDelay,
		MaxDelay:   c.Mail.RetryMaxDelay,
	}
}

// Dispatcher returns the mail queue settings.
func (c *Config) Dispatcher() mail.DispatcherConfig {
	return mail.DispatcherConfig{
		Workers:     c.Mail.Workers,
		QueueSize:   c.Mail.QueueSize,
		SendTimeout: c.Mail.SendTimeout,
	}
}

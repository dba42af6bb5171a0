// Package config loads server settings from an optional config file and the
// environment. Every key has a default; environment variables win over the
// file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Session  SessionConfig  `mapstructure:"session"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Email    EmailConfig    `mapstructure:"email"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`       // local / production
	LogLevel string `mapstructure:"log_level"` // debug / info / warn / error
	HTTPAddr string `mapstructure:"http_addr"`
	BaseURL  string `mapstructure:"base_url"` // public URL used in emailed links
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	ActivePeriod             time.Duration `mapstructure:"active_period"`
	IdlePeriod               time.Duration `mapstructure:"idle_period"`
	CookieName               string        `mapstructure:"cookie_name"`
	CookieSecure             bool          `mapstructure:"cookie_secure"`
	RequireEmailVerification bool          `mapstructure:"require_email_verification"`
}

type OAuthProviderConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// Enabled reports whether the provider has credentials
func (o OAuthProviderConfig) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

type OAuthConfig struct {
	Github OAuthProviderConfig `mapstructure:"github"`
	Google OAuthProviderConfig `mapstructure:"google"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	SMTPUser string `mapstructure:"smtp_user"`
	SMTPPass string `mapstructure:"smtp_pass"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	KeyPrefix   string `mapstructure:"key_prefix"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	Concurrency int    `mapstructure:"concurrency"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.App.Env)
	return env == "production" || env == "prod"
}

// envBindings maps config keys onto their conventional environment names
var envBindings = map[string]string{
	"app.env":                            "APP_ENV",
	"app.log_level":                      "LOG_LEVEL",
	"app.http_addr":                      "HTTP_ADDR",
	"app.base_url":                       "APP_BASE_URL",
	"database.dsn":                       "DATABASE_DSN",
	"redis.addr":                         "REDIS_ADDR",
	"redis.password":                     "REDIS_PASSWORD",
	"session.require_email_verification": "REQUIRE_EMAIL_VERIFICATION",
	"oauth.github.client_id":             "OAUTH_GITHUB_CLIENT_ID",
	"oauth.github.client_secret":         "OAUTH_GITHUB_CLIENT_SECRET",
	"oauth.github.callback_url":          "OAUTH_GITHUB_CALLBACK_URL",
	"oauth.google.client_id":             "OAUTH_GOOGLE_CLIENT_ID",
	"oauth.google.client_secret":         "OAUTH_GOOGLE_CLIENT_SECRET",
	"oauth.google.callback_url":          "OAUTH_GOOGLE_CALLBACK_URL",
	"email.smtp_host":                    "SMTP_HOST",
	"email.smtp_port":                    "SMTP_PORT",
	"email.smtp_user":                    "SMTP_USER",
	"email.smtp_pass":                    "SMTP_PASS",
	"email.from":                         "SMTP_FROM",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "local")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("database.dsn", "root:password@tcp(localhost:3306)/sessionauth?parseTime=true&loc=UTC")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.active_period", 14*24*time.Hour)
	v.SetDefault("session.idle_period", 14*24*time.Hour)
	v.SetDefault("session.cookie_name", "auth_session")
	v.SetDefault("session.cookie_secure", true)
	v.SetDefault("session.require_email_verification", false)

	for _, p := range []string{"github", "google"} {
		v.SetDefault("oauth."+p+".client_id", "")
		v.SetDefault("oauth."+p+".client_secret", "")
		v.SetDefault("oauth."+p+".callback_url", "http://localhost:8080/auth/login/"+p+"/callback")
	}

	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.smtp_user", "")
	v.SetDefault("email.smtp_pass", "")
	v.SetDefault("email.from", "")

	v.SetDefault("queue.key_prefix", "sessionauth:queue:email")
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.concurrency", 2)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)
}

// Load reads the config file at path, if given and present, then applies
// environment overrides. Nested keys are also read from upper cased,
// underscore joined variables, e.g. SESSION_IDLE_PERIOD.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config file: %w", err)
				}
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr is required"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	} else if _, err := mysql.ParseDSN(c.Database.DSN); err != nil {
		errs = append(errs, fmt.Errorf("database.dsn: %w", err))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.Session.ActivePeriod <= 0 || c.Session.IdlePeriod <= 0 {
		errs = append(errs, errors.New("session periods must be positive"))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("queue.max_attempts must be at least 1"))
	}
	if c.IsProduction() {
		if c.Email.SMTPHost == "" || c.Email.From == "" {
			errs = append(errs, errors.New("email.smtp_host and email.from are required in production"))
		}
		if !c.Session.CookieSecure {
			errs = append(errs, errors.New("session.cookie_secure must be true in production"))
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger: JSON in production, text otherwise
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

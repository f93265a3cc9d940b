// Package config loads the accounts frontend settings from the environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	Env        string `env:"ACCOUNTS_ENV"        envDefault:"development"`
	Addr       string `env:"ACCOUNTS_ADDR"       envDefault:":5007"`
	BaseURL    string `env:"ACCOUNTS_BASE_URL"   envDefault:"http://localhost:5007"`
	URLPrefix  string `env:"ACCOUNTS_URL_PREFIX" envDefault:"/user"`
	Version    string `env:"ACCOUNTS_VERSION"    envDefault:"dev"`
	LogLevel   string `env:"ACCOUNTS_LOG_LEVEL"  envDefault:"info"`
	SecretKey  string `env:"ACCOUNTS_SECRET_KEY"`
	DecoyEmail string `env:"ACCOUNTS_DECOY_EMAIL" envDefault:"simulate-delivered@notifications.service.gov.uk"`

	Tokens   TokenConfig
	API      APIConfig
	Notify   NotifyConfig
	Session  SessionConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Password PasswordConfig

	HTTPTimeout time.Duration `env:"ACCOUNTS_HTTP_TIMEOUT" envDefault:"10s"`
}

// TokenConfig holds the token signing material.
type TokenConfig struct {
	SharedEmailKey    string        `env:"ACCOUNTS_SHARED_EMAIL_KEY"`
	ResetPasswordSalt string        `env:"ACCOUNTS_RESET_PASSWORD_SALT" envDefault:"ResetPasswordSalt"`
	InviteEmailSalt   string        `env:"ACCOUNTS_INVITE_EMAIL_SALT"   envDefault:"InviteEmailSalt"`
	ResetTokenTTL     time.Duration `env:"ACCOUNTS_RESET_TOKEN_TTL"     envDefault:"24h"`
	InviteTokenTTL    time.Duration `env:"ACCOUNTS_INVITE_TOKEN_TTL"    envDefault:"168h"`
}

type APIConfig struct {
	URL   string `env:"ACCOUNTS_DATA_API_URL"`
	Token string `env:"ACCOUNTS_DATA_API_TOKEN"`
}

// NotifyConfig configures the notification service client.
type NotifyConfig struct {
	APIKey  string `env:"ACCOUNTS_NOTIFY_API_KEY"`
	BaseURL string `env:"ACCOUNTS_NOTIFY_BASE_URL"`

	ResetPasswordTemplate         string `env:"ACCOUNTS_NOTIFY_TEMPLATE_RESET_PASSWORD"`
	ResetPasswordInactiveTemplate string `env:"ACCOUNTS_NOTIFY_TEMPLATE_RESET_PASSWORD_INACTIVE"`
	ChangePasswordAlertTemplate   string `env:"ACCOUNTS_NOTIFY_TEMPLATE_CHANGE_PASSWORD_ALERT"`

	// RedirectDomains maps a recipient domain to the address that receives
	// its mail instead, e.g. "example.gov.uk:simulate@notify.test".
	RedirectDomains map[string]string `env:"ACCOUNTS_NOTIFY_REDIRECT_DOMAINS" envSeparator:"," envKeyValSeparator:":"`
}

type SessionConfig struct {
	Lifetime     time.Duration `env:"ACCOUNTS_SESSION_LIFETIME" envDefault:"1h"`
	CookieSecure bool          `env:"ACCOUNTS_COOKIE_SECURE"    envDefault:"true"`
	CookieName   string        `env:"ACCOUNTS_SESSION_COOKIE"   envDefault:"dm_session"`
}

// RedisConfig is optional; without an address sessions are kept in memory.
type RedisConfig struct {
	Addr     string `env:"ACCOUNTS_REDIS_ADDR"`
	Password string `env:"ACCOUNTS_REDIS_PASSWORD"`
	DB       int    `env:"ACCOUNTS_REDIS_DB" envDefault:"0"`
}

// LedgerConfig enables the consume-once reset token ledger when DSN is set.
type LedgerConfig struct {
	DSN string `env:"ACCOUNTS_TOKEN_LEDGER_DSN"`
}

type PasswordConfig struct {
	// BlocklistDir replaces the embedded wordlists when set.
	BlocklistDir string `env:"ACCOUNTS_PASSWORD_BLOCKLIST_DIR"`
}

// Load reads a .env file when present, then the environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment")
	}

	cfg.URLPrefix = "/" + strings.Trim(cfg.URLPrefix, "/")
	if cfg.URLPrefix == "/" {
		cfg.URLPrefix = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configuration the service cannot start with.
func (c Config) Validate() error {
	missing := []string{}
	if c.Tokens.SharedEmailKey == "" {
		missing = append(missing, "ACCOUNTS_SHARED_EMAIL_KEY")
	}
	if c.SecretKey == "" {
		missing = append(missing, "ACCOUNTS_SECRET_KEY")
	}
	if c.API.URL == "" {
		missing = append(missing, "ACCOUNTS_DATA_API_URL")
	}
	if len(missing) > 0 {
		return goerrors.New("missing required configuration", goerrors.CategoryBadInput).
			WithTextCode("CONFIG_MISSING").
			WithMetadata(map[string]any{"keys": missing})
	}

	if c.Tokens.ResetPasswordSalt == c.Tokens.InviteEmailSalt {
		return goerrors.New("reset and invitation salts must differ", goerrors.CategoryBadInput).
			WithTextCode("CONFIG_INVALID")
	}
	if len(c.SecretKey) < 32 {
		return goerrors.New("ACCOUNTS_SECRET_KEY must be at least 32 bytes", goerrors.CategoryBadInput).
			WithTextCode("CONFIG_INVALID")
	}
	return nil
}

// IsLive reports whether notifications reach real recipients.
func (c Config) IsLive() bool {
	return c.Env == "production"
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	LinkModeTokenHash = "token_hash"
	LinkModeCode      = "code"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"DB_PATH" envDefault:"crownvault.db"`
	BaseURL   string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	SiteName  string `env:"SITE_NAME" envDefault:"Crown Vault"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	AdminPassword     string        `env:"ADMIN_PASSWORD"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	AdminJWTSecret    string        `env:"ADMIN_JWT_SECRET"`
	AdminTokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"12h"`

	PostmarkToken string `env:"POSTMARK_SERVER_TOKEN"`
	EmailFrom     string `env:"EMAIL_FROM" envDefault:"noreply@crownvault.local"`
	LinkMode      string `env:"MAGIC_LINK_MODE" envDefault:"token_hash"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"S3_BUCKET" envDefault:"watch-images"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3PublicURL string `env:"S3_PUBLIC_URL"`
	UploadDir   string `env:"UPLOAD_DIR" envDefault:"uploads"`

	BackupPassphrase string        `env:"BACKUP_PASSPHRASE"`
	BackupInterval   time.Duration `env:"BACKUP_INTERVAL" envDefault:"24h"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-20250514"`
	AnthropicURL    string `env:"ANTHROPIC_URL" envDefault:"https://api.anthropic.com/"`
}

// Load reads an optional .env file and then the CROWNVAULT_ environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, env.Options{Prefix: "CROWNVAULT_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LinkMode {
	case LinkModeTokenHash, LinkModeCode:
	default:
		return fmt.Errorf("invalid magic link mode %q", c.LinkMode)
	}
	if c.AdminPassword == "" && c.AdminPasswordHash == "" {
		return fmt.Errorf("one of CROWNVAULT_ADMIN_PASSWORD or CROWNVAULT_ADMIN_PASSWORD_HASH is required")
	}
	if c.AdminJWTSecret == "" {
		return fmt.Errorf("CROWNVAULT_ADMIN_JWT_SECRET is required")
	}
	return nil
}

// S3Configured reports whether object storage credentials are present.
func (c *Config) S3Configured() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// CallbackURL is the redirect target embedded in magic links.
func (c *Config) CallbackURL() string {
	return c.BaseURL + "/auth/callback"
}

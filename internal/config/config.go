// Package config loads service configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the memberbase server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Identity IdentityConfig `mapstructure:"identity"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
	// WebhookDedupeTTL is how long a processed webhook delivery id is remembered.
	WebhookDedupeTTL time.Duration `mapstructure:"webhook_dedupe_ttl"`
}

// IdentityConfig configures the external identity provider: session token
// verification, webhook signatures and the outbound invitation API.
type IdentityConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	JWTPublicKey      string        `mapstructure:"jwt_public_key"`
	JWTIssuer         string        `mapstructure:"jwt_issuer"`
	WebhookSecret     string        `mapstructure:"webhook_secret"`
	APIBaseURL        string        `mapstructure:"api_base_url"`
	APISecretKey      string        `mapstructure:"api_secret_key"`
	InviteRedirectURL string        `mapstructure:"invite_redirect_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// bindings maps config keys to the environment variables that feed them, in
// order of precedence.
var bindings = map[string][]string{
	"server.port":                  {"MEMBERBASE_PORT", "PORT"},
	"server.env":                   {"MEMBERBASE_ENV"},
	"database.url":                 {"DATABASE_URL"},
	"database.max_open_conns":      {"DATABASE_MAX_OPEN_CONNS"},
	"database.max_idle_conns":      {"DATABASE_MAX_IDLE_CONNS"},
	"database.conn_max_lifetime":   {"DATABASE_CONN_MAX_LIFETIME"},
	"redis.url":                    {"REDIS_URL"},
	"redis.webhook_dedupe_ttl":     {"REDIS_WEBHOOK_DEDUPE_TTL"},
	"identity.jwt_secret":          {"IDENTITY_JWT_SECRET"},
	"identity.jwt_public_key":      {"IDENTITY_JWT_PUBLIC_KEY"},
	"identity.jwt_issuer":          {"IDENTITY_JWT_ISSUER"},
	"identity.webhook_secret":      {"IDENTITY_WEBHOOK_SECRET"},
	"identity.api_base_url":        {"IDENTITY_API_BASE_URL"},
	"identity.api_secret_key":      {"IDENTITY_API_SECRET_KEY"},
	"identity.invite_redirect_url": {"IDENTITY_INVITE_REDIRECT_URL"},
	"identity.timeout":             {"IDENTITY_TIMEOUT"},
	"log.level":                    {"LOG_LEVEL"},
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Load reads configuration from the environment, with values from ./.env
// filling anything the environment leaves unset.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is ignored.
func LoadFile(dotenvPath string) (*Config, error) {
	cfg, err := read(dotenvPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings, for tools that never
// serve requests.
func LoadDatabase(dotenvPath string) (DatabaseConfig, error) {
	cfg, err := read(dotenvPath)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if cfg.Database.URL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg.Database, nil
}

func read(dotenvPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.webhook_dedupe_ttl", 24*time.Hour)
	v.SetDefault("identity.api_base_url", "https://api.clerk.com")
	v.SetDefault("identity.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")

	dotenv := viper.New()
	dotenv.SetConfigFile(dotenvPath)
	dotenv.SetConfigType("env")
	_ = dotenv.ReadInConfig() // a missing .env is fine

	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
		for _, e := range envs {
			if dotenv.IsSet(e) {
				v.SetDefault(key, dotenv.Get(e))
				break
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("MEMBERBASE_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Identity.WebhookSecret == "" {
		return fmt.Errorf("IDENTITY_WEBHOOK_SECRET is required")
	}
	if c.Identity.JWTSecret == "" && c.Identity.JWTPublicKey == "" {
		return fmt.Errorf("one of IDENTITY_JWT_SECRET or IDENTITY_JWT_PUBLIC_KEY is required")
	}
	if u := c.Identity.APIBaseURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("IDENTITY_API_BASE_URL must start with http:// or https://, got %q", u)
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CREDENTIALS_"

// Config is the full server configuration. It satisfies the library's
// Config interface so it can be handed straight to the authenticator.
type Config struct {
	Server struct {
		Address         string        `koanf:"address"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
		Debug           bool          `koanf:"debug"`
	} `koanf:"server"`

	Database struct {
		DSN string `koanf:"dsn"`
	} `koanf:"database"`

	Auth struct {
		SigningKey           string        `koanf:"signing_key"`
		SigningMethod        string        `koanf:"signing_method"`
		Issuer               string        `koanf:"issuer"`
		Audience             []string      `koanf:"audience"`
		ContextKey           string        `koanf:"context_key"`
		TokenLookup          string        `koanf:"token_lookup"`
		AuthScheme           string        `koanf:"auth_scheme"`
		AccessTokenTTL       time.Duration `koanf:"access_token_ttl"`
		RefreshTokenTTL      time.Duration `koanf:"refresh_token_ttl"`
		RequireVerifiedEmail bool          `koanf:"require_verified_email"`
	} `koanf:"auth"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	SMTP struct {
		Host     string `koanf:"host"`
		Port     int    `koanf:"port"`
		Username string `koanf:"username"`
		Password string `koanf:"password"`
		From     string `koanf:"from"`
		FromName string `koanf:"from_name"`
		TLS      bool   `koanf:"tls"`
		BaseURL  string `koanf:"base_url"`
	} `koanf:"smtp"`
}

func (c *Config) GetSigningKey() string    { return c.Auth.SigningKey }
func (c *Config) GetSigningMethod() string { return c.Auth.SigningMethod }
func (c *Config) GetIssuer() string        { return c.Auth.Issuer }
func (c *Config) GetAudience() []string    { return c.Auth.Audience }
func (c *Config) GetContextKey() string    { return c.Auth.ContextKey }
func (c *Config) GetTokenLookup() string   { return c.Auth.TokenLookup }
func (c *Config) GetAuthScheme() string    { return c.Auth.AuthScheme }

func (c *Config) GetAccessTokenTTL() time.Duration  { return c.Auth.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() time.Duration { return c.Auth.RefreshTokenTTL }
func (c *Config) GetRequireVerifiedEmail() bool     { return c.Auth.RequireVerifiedEmail }

// LoadConfig reads the yaml file when present and layers environment
// variables on top, e.g. CREDENTIALS_AUTH__SIGNING_KEY overrides
// auth.signing_key.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := defaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Auth.SigningKey == "" {
		return nil, fmt.Errorf("auth.signing_key is required")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":3000"
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Database.DSN = "file:credentials.db?cache=shared&_pragma=foreign_keys(1)"

	cfg.Auth.SigningMethod = "HS256"
	cfg.Auth.Issuer = "credentials"
	cfg.Auth.ContextKey = "identity"
	cfg.Auth.TokenLookup = "header:Authorization"
	cfg.Auth.AuthScheme = "Bearer"
	cfg.Auth.AccessTokenTTL = time.Hour
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.RequireVerifiedEmail = true

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a-ariff/canvas-student-mcp-server/server"
)

// Environment variables read by Load
const (
	EnvIssuer        = "OAUTH_ISSUER"
	EnvClientID      = "OAUTH_CLIENT_ID"
	EnvClientSecret  = "OAUTH_CLIENT_SECRET"
	EnvRedirectURIs  = "OAUTH_REDIRECT_URIS"
	EnvEncryptionKey = "OAUTH_ENCRYPTION_KEY"
	EnvValkeyAddr    = "VALKEY_ADDR"
	EnvRedisAddr     = "REDIS_ADDR"
)

// Load reads the YAML file at path over Default(), applies environment
// overrides and validates the result. An empty path or a missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvIssuer); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv(EnvEncryptionKey); v != "" {
		cfg.EncryptionKey = v
	}

	// REDIS_ADDR wins when both are set.
	if v := os.Getenv(EnvValkeyAddr); v != "" {
		cfg.Store.Backend = BackendValkey
		cfg.Store.Valkey.Address = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Store.Backend = BackendRedis
		cfg.Store.Redis.Address = v
	}

	if id := os.Getenv(EnvClientID); id != "" {
		redirects := server.DefaultClient().RedirectURIs
		if v := os.Getenv(EnvRedirectURIs); v != "" {
			redirects = splitList(v)
		}
		cfg.Clients = append(cfg.Clients, ClientConfig{
			ClientID:     id,
			ClientName:   "Environment client",
			ClientSecret: os.Getenv(EnvClientSecret),
			RedirectURIs: redirects,
			GrantTypes:   []string{server.GrantTypeAuthorizationCode, server.GrantTypeRefreshToken},
			Confidential: true,
		})
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

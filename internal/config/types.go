package config

import "time"

// Store backends
const (
	BackendMemory = "memory"
	BackendValkey = "valkey"
	BackendRedis  = "redis"
)

// Config is the gateway process configuration.
type Config struct {
	// Listen is the HTTP listen address
	Listen string `yaml:"listen"`

	// Issuer is the public base URL of the gateway
	Issuer string `yaml:"issuer"`

	TrustProxy        bool   `yaml:"trust_proxy"`
	TrustedProxyCount int    `yaml:"trusted_proxy_count"`
	AllowInsecureHTTP bool   `yaml:"allow_insecure_http"`
	DefaultUserID     string `yaml:"default_user_id"`

	Store           StoreConfig           `yaml:"store"`
	Tokens          TokenConfig           `yaml:"tokens"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	CORS            CORSConfig            `yaml:"cors"`
	Audit           AuditConfig           `yaml:"audit"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`

	// EncryptionKey is a base64 encoded 32 byte key. Empty stores records
	// in plaintext.
	EncryptionKey string `yaml:"encryption_key"`

	// Clients are registered in addition to the built-in public client
	Clients []ClientConfig `yaml:"clients"`

	// DisableDefaultClient drops the built-in canvas-mcp-client
	DisableDefaultClient bool `yaml:"disable_default_client"`
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	Valkey  BackendConfig `yaml:"valkey"`
	Redis   BackendConfig `yaml:"redis"`
}

// BackendConfig holds the connection settings of a networked store.
type BackendConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TLS       bool   `yaml:"tls"`
}

// TokenConfig holds credential lifetimes.
type TokenConfig struct {
	AuthorizationCodeTTL time.Duration `yaml:"authorization_code_ttl"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl"`
}

// RateLimitConfig configures the per-IP limiter. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CORSConfig mirrors oauth.CORSConfig.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// AuditConfig toggles security audit logging.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InstrumentationConfig mirrors instrumentation.Config.
type InstrumentationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	MetricsExporter string `yaml:"metrics_exporter"`
	TracesExporter  string `yaml:"traces_exporter"`
	LogClientIPs    bool   `yaml:"log_client_ips"`
}

// ClientConfig is a statically registered OAuth client.
type ClientConfig struct {
	ClientID         string   `yaml:"client_id"`
	ClientName       string   `yaml:"client_name"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretHash string   `yaml:"client_secret_hash"`
	RedirectURIs     []string `yaml:"redirect_uris"`
	GrantTypes       []string `yaml:"grant_types"`
	Confidential     bool     `yaml:"confidential"`
}

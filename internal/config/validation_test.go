package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "relative issuer",
			mutate:  func(c *Config) { c.Issuer = "/oauth" },
			wantErr: []string{"issuer"},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: []string{`unknown store backend "etcd"`},
		},
		{
			name:    "valkey without address",
			mutate:  func(c *Config) { c.Store.Backend = BackendValkey },
			wantErr: []string{"store.valkey.address"},
		},
		{
			name:    "redis without address",
			mutate:  func(c *Config) { c.Store.Backend = BackendRedis },
			wantErr: []string{"store.redis.address"},
		},
		{
			name:    "negative ttl",
			mutate:  func(c *Config) { c.Tokens.AccessTokenTTL = -1 },
			wantErr: []string{"TTLs"},
		},
		{
			name:    "short encryption key",
			mutate:  func(c *Config) { c.EncryptionKey = "c2hvcnQ=" },
			wantErr: []string{"encryption key"},
		},
		{
			name:    "unknown exporter",
			mutate:  func(c *Config) { c.Instrumentation.MetricsExporter = "statsd" },
			wantErr: []string{"metrics exporter"},
		},
		{
			name: "client problems are all reported",
			mutate: func(c *Config) {
				c.Listen = ""
				c.Clients = []ClientConfig{
					{ClientID: "canvas-mcp-client", RedirectURIs: []string{"https://x/cb"}},
					{ClientID: "a", GrantTypes: []string{"password"}},
					{ClientID: "b", RedirectURIs: []string{"https://b/cb"}, Confidential: true},
					{ClientID: "c", RedirectURIs: []string{"https://c/cb"}, ClientSecret: "s"},
				}
			},
			wantErr: []string{
				"listen address",
				`duplicate client_id "canvas-mcp-client"`,
				"clients[1]: at least one redirect_uri",
				`clients[1]: unsupported grant type "password"`,
				"clients[2]: confidential client needs",
				"clients[3]: public client must not have a secret",
			},
		},
		{
			name: "default client id is free when disabled",
			mutate: func(c *Config) {
				c.DisableDefaultClient = true
				c.Clients = []ClientConfig{{ClientID: "canvas-mcp-client", RedirectURIs: []string{"https://x/cb"}}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestRegistryClients_DisableDefault(t *testing.T) {
	cfg := Default()
	cfg.DisableDefaultClient = true
	assert.Empty(t, cfg.RegistryClients())
}

func TestEncryptor_Disabled(t *testing.T) {
	cfg := Default()
	enc, err := cfg.Encryptor()
	assert.NoError(t, err)
	assert.Nil(t, enc)
}

package config

import (
	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/server"
)

// ServerConfig returns the library configuration for server.New.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		Issuer:               c.Issuer,
		AuthorizationCodeTTL: c.Tokens.AuthorizationCodeTTL,
		AccessTokenTTL:       c.Tokens.AccessTokenTTL,
		RefreshTokenTTL:      c.Tokens.RefreshTokenTTL,
		TrustProxy:           c.TrustProxy,
		TrustedProxyCount:    c.TrustedProxyCount,
		DefaultUserID:        c.DefaultUserID,
		AllowInsecureHTTP:    c.AllowInsecureHTTP,
	}
}

// RegistryClients returns the clients to seed the registry with.
func (c *Config) RegistryClients() []*server.Client {
	var clients []*server.Client
	if !c.DisableDefaultClient {
		clients = append(clients, server.DefaultClient())
	}

	for _, cl := range c.Clients {
		grants := cl.GrantTypes
		if len(grants) == 0 {
			grants = []string{server.GrantTypeAuthorizationCode, server.GrantTypeRefreshToken}
		}
		clients = append(clients, &server.Client{
			ClientID:         cl.ClientID,
			ClientName:       cl.ClientName,
			ClientSecret:     cl.ClientSecret,
			ClientSecretHash: cl.ClientSecretHash,
			RedirectURIs:     cl.RedirectURIs,
			GrantTypes:       grants,
			IsConfidential:   cl.Confidential,
		})
	}
	return clients
}

// Encryptor returns the record encryptor, or nil when no key is set.
func (c *Config) Encryptor() (*security.Encryptor, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := security.KeyFromBase64(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return security.NewEncryptor(key)
}

// InstrumentationConfig returns the OpenTelemetry settings.
func (c *Config) InstrumentationConfig(version string) instrumentation.Config {
	return instrumentation.Config{
		ServiceVersion:  version,
		Enabled:         c.Instrumentation.Enabled,
		LogClientIPs:    c.Instrumentation.LogClientIPs,
		MetricsExporter: c.Instrumentation.MetricsExporter,
		TracesExporter:  c.Instrumentation.TracesExporter,
	}
}

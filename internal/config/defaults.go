package config

import "github.com/a-ariff/canvas-student-mcp-server/server"

const (
	// DefaultListen is the default HTTP listen address
	DefaultListen = ":8080"

	// DefaultIssuer matches DefaultListen for local development
	DefaultIssuer = "http://localhost:8080"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:            DefaultListen,
		Issuer:            DefaultIssuer,
		TrustedProxyCount: 1,
		DefaultUserID:     server.DefaultUserID,
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Tokens: TokenConfig{
			AuthorizationCodeTTL: server.DefaultAuthorizationCodeTTL,
			AccessTokenTTL:       server.DefaultAccessTokenTTL,
			RefreshTokenTTL:      server.DefaultRefreshTokenTTL,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Instrumentation: InstrumentationConfig{
			MetricsExporter: "none",
			TracesExporter:  "none",
		},
	}
}

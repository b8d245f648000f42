package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/server"
)

// Validate reports every problem in c at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if u, err := url.Parse(c.Issuer); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("issuer %q must be an absolute http(s) URL", c.Issuer))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendValkey:
		if c.Store.Valkey.Address == "" {
			errs = append(errs, errors.New("store.valkey.address is required for the valkey backend"))
		}
	case BackendRedis:
		if c.Store.Redis.Address == "" {
			errs = append(errs, errors.New("store.redis.address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q (want memory, valkey or redis)", c.Store.Backend))
	}

	if c.Tokens.AuthorizationCodeTTL < 0 || c.Tokens.AccessTokenTTL < 0 || c.Tokens.RefreshTokenTTL < 0 {
		errs = append(errs, errors.New("token TTLs must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}

	if c.EncryptionKey != "" {
		if _, err := security.KeyFromBase64(c.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("encryption key: %w", err))
		}
	}

	exporters := []string{"", instrumentation.ExporterNone, instrumentation.ExporterPrometheus}
	if !slices.Contains(exporters, c.Instrumentation.MetricsExporter) {
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.Instrumentation.MetricsExporter))
	}
	exporters = []string{"", instrumentation.ExporterNone, instrumentation.ExporterStdout}
	if !slices.Contains(exporters, c.Instrumentation.TracesExporter) {
		errs = append(errs, fmt.Errorf("unknown traces exporter %q", c.Instrumentation.TracesExporter))
	}

	seen := map[string]bool{}
	if !c.DisableDefaultClient {
		seen[server.DefaultClientID] = true
	}
	for i, cl := range c.Clients {
		errs = append(errs, cl.validate(i, seen)...)
	}

	return errors.Join(errs...)
}

func (cl ClientConfig) validate(i int, seen map[string]bool) []error {
	var errs []error
	prefix := fmt.Sprintf("clients[%d]", i)

	if cl.ClientID == "" {
		errs = append(errs, fmt.Errorf("%s: client_id is required", prefix))
	} else if seen[cl.ClientID] {
		errs = append(errs, fmt.Errorf("%s: duplicate client_id %q", prefix, cl.ClientID))
	}
	seen[cl.ClientID] = true

	if len(cl.RedirectURIs) == 0 {
		errs = append(errs, fmt.Errorf("%s: at least one redirect_uri is required", prefix))
	}
	for _, g := range cl.GrantTypes {
		if g != server.GrantTypeAuthorizationCode && g != server.GrantTypeRefreshToken {
			errs = append(errs, fmt.Errorf("%s: unsupported grant type %q", prefix, g))
		}
	}
	if cl.Confidential && cl.ClientSecret == "" && cl.ClientSecretHash == "" {
		errs = append(errs, fmt.Errorf("%s: confidential client needs client_secret or client_secret_hash", prefix))
	}
	if !cl.Confidential && (cl.ClientSecret != "" || cl.ClientSecretHash != "") {
		errs = append(errs, fmt.Errorf("%s: public client must not have a secret", prefix))
	}

	return errs
}

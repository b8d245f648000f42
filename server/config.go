package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/a-ariff/canvas-student-mcp-server/internal/util"
)

const (
	// DefaultAuthorizationCodeTTL is how long an authorization code stays redeemable.
	DefaultAuthorizationCodeTTL = 600 * time.Second

	// DefaultAccessTokenTTL is the lifetime of an access token.
	DefaultAccessTokenTTL = 3600 * time.Second

	// DefaultRefreshTokenTTL is the lifetime of a refresh token.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultUserID is the principal recorded on codes until an upstream login
	// step identifies the user.
	DefaultUserID = "authenticated_user"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 10 minutes
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is how long access tokens are valid.
	// Default: 1 hour
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is how long refresh tokens are valid.
	// Default: 30 days
	RefreshTokenTTL time.Duration

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server.
	// Default: 1
	TrustedProxyCount int

	// DefaultUserID is the user every authorization code is issued for.
	// Default: "authenticated_user"
	DefaultUserID string

	// AllowInsecureHTTP allows an http:// issuer on a non-loopback host.
	// Default: false
	AllowInsecureHTTP bool
}

// applySecureDefaults fills unset fields. Negative TTLs are treated as unset.
func applySecureDefaults(config *Config) *Config {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.TrustedProxyCount <= 0 {
		config.TrustedProxyCount = 1
	}
	if config.DefaultUserID == "" {
		config.DefaultUserID = DefaultUserID
	}
	config.Issuer = util.TrimTrailingSlash(config.Issuer)
	return config
}

// validateHTTPSEnforcement rejects an http:// issuer outside loopback unless
// AllowInsecureHTTP is set.
func validateHTTPSEnforcement(config *Config, logger *slog.Logger) error {
	if config.Issuer == "" {
		return nil
	}

	issuerURL, err := url.Parse(config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
		hostname := issuerURL.Hostname()
		if util.IsLoopbackHost(hostname) {
			if !config.AllowInsecureHTTP {
				logger.Warn("Running OAuth over HTTP on localhost",
					"issuer", config.Issuer,
					"to_suppress", "set AllowInsecureHTTP=true")
			}
			return nil
		}
		if !config.AllowInsecureHTTP {
			return fmt.Errorf("issuer must use HTTPS outside localhost (got http://%s); set AllowInsecureHTTP=true to override", hostname)
		}
		logger.Error("Running OAuth server over HTTP on a non-loopback host",
			"issuer", config.Issuer,
			"hostname", hostname)
		return nil
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}
}

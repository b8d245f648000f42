package oauth

import "strings"

// Default endpoint paths
const (
	DefaultAuthorizationPath = "/oauth/authorize"
	DefaultTokenPath         = "/oauth/token"
	DefaultMetadataPath      = "/.well-known/oauth-authorization-server"
	DefaultMCPConfigPath     = "/.well-known/mcp-config"
	DefaultHealthPath        = "/health"
	DefaultSSEPath           = "/sse"
	DefaultSSEMessagePath    = "/sse/message"
	DefaultMCPPath           = "/mcp"
)

// defaultCORSMaxAge is how long browsers may cache a preflight response (seconds)
const defaultCORSMaxAge = 86400

// HandlerConfig holds the HTTP layer configuration. Zero values fall back to
// the defaults above.
type HandlerConfig struct {
	// Endpoint paths served by RegisterRoutes
	AuthorizationPath string
	TokenPath         string
	MetadataPath      string
	MCPConfigPath     string
	HealthPath        string

	// SSEPath and MCPPath are advertised in metadata and protected by
	// ValidateToken. The MCP transport itself is mounted by the caller.
	SSEPath        string
	SSEMessagePath string
	MCPPath        string

	// CORS controls cross-origin access to the OAuth endpoints
	CORS CORSConfig
}

// CORSConfig holds CORS settings for browser-based MCP clients.
// Discovery documents are always served with Access-Control-Allow-Origin: *.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed on the authorize and token
	// endpoints. "*" allows any origin. Empty disables CORS headers there.
	AllowedOrigins []string

	// AllowCredentials sets Access-Control-Allow-Credentials: true
	AllowCredentials bool

	// MaxAge is the preflight cache duration in seconds. Default: 86400
	MaxAge int
}

// applyHandlerDefaults returns a copy of config with defaults filled in
func applyHandlerDefaults(config *HandlerConfig) *HandlerConfig {
	c := HandlerConfig{}
	if config != nil {
		c = *config
	}

	c.AuthorizationPath = pathOrDefault(c.AuthorizationPath, DefaultAuthorizationPath)
	c.TokenPath = pathOrDefault(c.TokenPath, DefaultTokenPath)
	c.MetadataPath = pathOrDefault(c.MetadataPath, DefaultMetadataPath)
	c.MCPConfigPath = pathOrDefault(c.MCPConfigPath, DefaultMCPConfigPath)
	c.HealthPath = pathOrDefault(c.HealthPath, DefaultHealthPath)
	c.SSEPath = pathOrDefault(c.SSEPath, DefaultSSEPath)
	c.SSEMessagePath = pathOrDefault(c.SSEMessagePath, DefaultSSEMessagePath)
	c.MCPPath = pathOrDefault(c.MCPPath, DefaultMCPPath)

	if c.CORS.MaxAge <= 0 {
		c.CORS.MaxAge = defaultCORSMaxAge
	}

	return &c
}

func pathOrDefault(path, def string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return def
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/server"
)

const (
	// maxTokenRequestBytes bounds the token endpoint body
	maxTokenRequestBytes = 64 << 10

	// healthCheckTimeout bounds the store ping behind /health
	healthCheckTimeout = 3 * time.Second

	// clientAuthChallenge is sent with invalid_client responses (RFC 6749 Section 5.2)
	clientAuthChallenge = `Basic realm="oauth"`

	tokenTypeBearer = "Bearer"
)

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server      *server.Server
	config      *HandlerConfig
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *instrumentation.Metrics
	rateLimiter *security.RateLimiter

	// logClientIPs attaches the client IP to request spans
	logClientIPs bool
}

// NewHandler creates a new HTTP handler. Instrumentation is taken from the
// server, so call server.SetInstrumentation first.
func NewHandler(srv *server.Server, config *HandlerConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		config: applyHandlerDefaults(config),
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer(""),
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
		h.metrics = srv.Instrumentation.Metrics()
		h.logClientIPs = srv.Instrumentation.ShouldLogClientIPs()
	}

	return h
}

// SetRateLimiter enables per-IP rate limiting on the authorize and token
// endpoints. Nil disables it.
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.rateLimiter = rl
}

// Config returns the effective handler configuration.
func (h *Handler) Config() *HandlerConfig {
	return h.config
}

// ServeAuthorization handles OAuth authorization requests. There is no
// interactive login: a valid request is answered with a 302 carrying a
// fresh code.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.ServePreflightRequest(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	// Set CORS headers for browser-based clients
	h.setCORSHeaders(w, r)

	query := r.URL.Query()
	req := &server.AuthorizationRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		State:               query.Get("state"),
		Scope:               query.Get("scope"),
		ClientIP:            clientIP,
	}

	location, err := h.server.StartAuthorization(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusFound)
}

// tokenRequestBody is the JSON form of a token request
type tokenRequestBody struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
	RedirectURI  string `json:"redirect_uri"`
	RefreshToken string `json:"refresh_token"`
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.ServePreflightRequest(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	// Set CORS headers for browser-based clients
	h.setCORSHeaders(w, r)

	req, err := h.parseTokenRequest(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req.ClientIP = clientIP

	token, err := h.server.HandleTokenRequest(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("Token issued", "client_id", req.ClientID, "grant_type", req.GrantType, "ip", clientIP)
	h.writeTokenResponse(w, token)
}

// parseTokenRequest reads a form-encoded or JSON body. Client credentials in
// the Authorization header take precedence over those in the body.
func (h *Handler) parseTokenRequest(w http.ResponseWriter, r *http.Request) (*server.TokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTokenRequestBytes)

	var body tokenRequestBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, ErrInvalidRequest("Failed to parse request")
		}
		body = tokenRequestBody{
			GrantType:    r.PostForm.Get("grant_type"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			Code:         r.PostForm.Get("code"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			RefreshToken: r.PostForm.Get("refresh_token"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, ErrInvalidRequest("Failed to parse request")
	}

	if id, secret, ok := r.BasicAuth(); ok {
		body.ClientID = unescapeCredential(id)
		body.ClientSecret = unescapeCredential(secret)
	}

	return &server.TokenRequest{
		GrantType:    body.GrantType,
		ClientID:     body.ClientID,
		ClientSecret: body.ClientSecret,
		Code:         body.Code,
		CodeVerifier: body.CodeVerifier,
		RedirectURI:  body.RedirectURI,
		RefreshToken: body.RefreshToken,
	}, nil
}

// unescapeCredential undoes the form encoding RFC 6749 Section 2.3.1
// requires for Basic credentials. Values that are not valid encodings are
// used as sent.
func unescapeCredential(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, token *oauth2.Token) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = tokenTypeBearer
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    tokenType,
		ExpiresIn:    int64(h.server.Config.AccessTokenTTL / time.Second),
		RefreshToken: token.RefreshToken,
	})
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		servePublicPreflight(w)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, h.buildAuthServerMetadata())
}

// buildAuthServerMetadata builds the RFC 8414 authorization server metadata.
func (h *Handler) buildAuthServerMetadata() *AuthorizationServerMetadata {
	issuer := h.server.Config.Issuer
	return &AuthorizationServerMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + h.config.AuthorizationPath,
		TokenEndpoint:                     issuer + h.config.TokenPath,
		GrantTypesSupported:               []string{server.GrantTypeAuthorizationCode, server.GrantTypeRefreshToken},
		ResponseTypesSupported:            []string{"code"},
		CodeChallengeMethodsSupported:     []string{server.PKCEMethodS256},
		TokenEndpointAuthMethodsSupported: SupportedTokenAuthMethods,
		SSEEndpoint:                       issuer + h.config.SSEPath,
	}
}

// SupportedTokenAuthMethods are the client authentication methods accepted
// by the token endpoint.
var SupportedTokenAuthMethods = []string{"client_secret_basic", "client_secret_post", "none"}

// ServeMCPConfig serves the JSON Schema describing the per-connection
// settings an MCP host collects for this server.
func (h *Handler) ServeMCPConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		servePublicPreflight(w)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, buildConfigSchema(h.server.Config.Issuer+h.config.MCPConfigPath))
}

func buildConfigSchema(id string) *ConfigSchema {
	return &ConfigSchema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		ID:          id,
		Title:       "Canvas Student MCP Configuration",
		Description: "Configuration for connecting to Canvas and Gradescope MCP server",
		QueryStyle:  "dot+bracket",
		Type:        "object",
		Properties: map[string]SchemaProperty{
			"canvasApiKey": {
				Type:        "string",
				Title:       "Canvas API Key",
				Description: "Your Canvas API access token (Get from Canvas → Account → Settings → Approved Integrations)",
			},
			"canvasBaseUrl": {
				Type:        "string",
				Title:       "Canvas Base URL",
				Description: "Your Canvas instance URL (e.g., https://canvas.instructure.com)",
				Default:     "https://canvas.instructure.com",
			},
			"debug": {
				Type:        "boolean",
				Title:       "Debug Mode",
				Description: "Enable debug logging",
				Default:     false,
			},
			"gradescopeEmail": {
				Type:        "string",
				Title:       "Gradescope Email",
				Description: "Your Gradescope email address (optional)",
			},
			"gradescopePassword": {
				Type:        "string",
				Title:       "Gradescope Password",
				Description: "Your Gradescope password (optional)",
			},
		},
		Required:             []string{"canvasApiKey"},
		AdditionalProperties: false,
	}
}

// ServeHealth reports liveness together with the credential store status.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.server.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Store: "unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Store: "ok"})
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
	h.metrics.RecordRateLimitExceeded(r.Context(), r.URL.Path)
	h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)

	w.Header().Set("Retry-After", strconv.Itoa(int(h.rateLimiter.RetryAfter()/time.Second)))
	h.writeOAuthError(w, ErrRateLimitExceeded("Rate limit exceeded. Please try again later."))
	return true
}

// writeError writes err as an OAuth error response. Errors that are not
// protocol errors are logged and hidden behind server_error.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	oauthErr, ok := AsOAuthError(err)
	if !ok {
		h.logger.Error("Request failed",
			"path", r.URL.Path,
			"request_id", security.GetRequestID(r.Context()),
			"error", err)
	}
	h.writeOAuthError(w, oauthErr)
}

func (h *Handler) writeOAuthError(w http.ResponseWriter, oauthErr *OAuthError) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if oauthErr.Status == http.StatusUnauthorized && oauthErr.Code == ErrorCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", clientAuthChallenge)
	}

	writeJSON(w, oauthErr.Status, ErrorResponse{
		Error:            oauthErr.Code,
		ErrorDescription: oauthErr.Description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// setCORSHeaders sets CORS headers if configured and the origin is allowed.
// Only applies if AllowedOrigins is configured, Origin header is present, and origin is allowed.
func (h *Handler) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(h.config.CORS.AllowedOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	if !h.isAllowedOrigin(origin) {
		h.logger.Debug("CORS request from disallowed origin", "origin", origin)
		return
	}

	// Echo the origin rather than "*" so credentials can be allowed
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")

	if h.config.CORS.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}

	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(h.config.CORS.MaxAge))
}

// isAllowedOrigin checks if the given origin is in the allowed origins list.
// Supports exact matching and wildcard "*".
func (h *Handler) isAllowedOrigin(origin string) bool {
	for _, allowed := range h.config.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServePreflightRequest handles CORS preflight (OPTIONS) requests.
// Required for non-simple requests (POST with JSON, custom headers, etc.).
func (h *Handler) ServePreflightRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodOptions {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.setCORSHeaders(w, r)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusNoContent)
}

// servePublicPreflight answers preflight requests for the discovery
// documents, which any origin may read.
func servePublicPreflight(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Max-Age", strconv.Itoa(defaultCORSMaxAge))
	w.WriteHeader(http.StatusNoContent)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument wraps an endpoint with an HTTP span and request metrics.
func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, span := h.tracer.Start(r.Context(), fmt.Sprintf("oauth.http.%s", endpoint))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, rec.status)
		if h.logClientIPs {
			instrumentation.AddSecurityAttributes(span, h.clientIP(r))
		}
		if rec.status >= http.StatusInternalServerError {
			instrumentation.SetSpanError(span, http.StatusText(rec.status))
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		h.metrics.RecordHTTPRequest(ctx, r.Method, endpoint, rec.status, float64(time.Since(start).Microseconds())/1000)
	}
}

// RegisterRoutes registers the OAuth, discovery and health endpoints on mux.
// The MCP transport is mounted separately behind ValidateToken.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(h.config.AuthorizationPath, h.instrument("authorization", h.ServeAuthorization))
	mux.HandleFunc(h.config.TokenPath, h.instrument("token", h.ServeToken))
	mux.HandleFunc(h.config.MetadataPath, h.instrument("metadata", h.ServeAuthorizationServerMetadata))
	mux.HandleFunc(h.config.MCPConfigPath, h.instrument("mcp_config", h.ServeMCPConfig))
	mux.HandleFunc(h.config.HealthPath, h.ServeHealth)
}

// trimBearer returns the credential of an "Authorization: Bearer" header.
// The scheme is case-insensitive (RFC 7235 Section 2.1).
func trimBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, tokenTypeBearer) {
		return "", false
	}
	return strings.TrimSpace(token), true
}

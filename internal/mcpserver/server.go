package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	oauth "github.com/a-ariff/canvas-student-mcp-server"
)

const (
	// DefaultName is the server name reported during initialize
	DefaultName = "Canvas Student MCP Server"

	sseKeepAliveInterval = 30 * time.Second
)

// Config configures the MCP endpoint.
type Config struct {
	Name    string
	Version string

	// BaseURL is the public origin the SSE transport advertises its message
	// endpoint under, normally the OAuth issuer.
	BaseURL string

	SSEPath        string
	SSEMessagePath string
	MCPPath        string

	Logger *slog.Logger
}

// Server hosts the MCP tools on the SSE and streamable HTTP transports.
type Server struct {
	config     Config
	logger     *slog.Logger
	mcp        *mcpsrv.MCPServer
	sse        *mcpsrv.SSEServer
	streamable *mcpsrv.StreamableHTTPServer
}

// New creates the MCP server and both transports.
func New(cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.SSEPath == "" {
		cfg.SSEPath = oauth.DefaultSSEPath
	}
	if cfg.SSEMessagePath == "" {
		cfg.SSEMessagePath = oauth.DefaultSSEMessagePath
	}
	if cfg.MCPPath == "" {
		cfg.MCPPath = oauth.DefaultMCPPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		logger: logger,
		mcp: mcpsrv.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpsrv.WithToolCapabilities(false),
		),
	}
	s.registerTools()

	s.sse = mcpsrv.NewSSEServer(
		s.mcp,
		mcpsrv.WithBaseURL(cfg.BaseURL),
		mcpsrv.WithSSEEndpoint(cfg.SSEPath),
		mcpsrv.WithMessageEndpoint(cfg.SSEMessagePath),
		mcpsrv.WithKeepAlive(true),
		mcpsrv.WithKeepAliveInterval(sseKeepAliveInterval),
		mcpsrv.WithSSEContextFunc(carryAuthContext),
	)
	s.streamable = mcpsrv.NewStreamableHTTPServer(
		s.mcp,
		mcpsrv.WithEndpointPath(cfg.MCPPath),
		mcpsrv.WithHTTPContextFunc(carryAuthContext),
	)

	return s
}

// carryAuthContext copies the principal set by the authentication
// middleware onto the context tool handlers run with.
func carryAuthContext(ctx context.Context, r *http.Request) context.Context {
	if authCtx, ok := oauth.AuthContextFrom(r.Context()); ok {
		return oauth.ContextWithAuthContext(ctx, authCtx)
	}
	return ctx
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcpsrv.MCPServer {
	return s.mcp
}

// Register mounts both transports on mux behind protect.
func (s *Server) Register(mux *http.ServeMux, protect func(http.Handler) http.Handler) {
	mux.Handle(s.config.SSEPath, protect(s.sse.SSEHandler()))
	mux.Handle(s.config.SSEMessagePath, protect(s.sse.MessageHandler()))
	mux.Handle(s.config.MCPPath, protect(s.streamable))
}

// Shutdown closes open sessions on both transports.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(s.sse.Shutdown(ctx), s.streamable.Shutdown(ctx))
}

func (s *Server) registerTools() {
	whoami := mcp.NewTool("whoami",
		mcp.WithDescription("Report the identity and authentication method of the current connection"),
	)
	s.mcp.AddTool(whoami, s.handleWhoami)
}

// whoamiResult is the JSON body of the whoami tool.
type whoamiResult struct {
	UserID      string   `json:"user_id"`
	AuthMethod  string   `json:"auth_method"`
	ClientID    string   `json:"client_id,omitempty"`
	Scope       string   `json:"scope,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func (s *Server) handleWhoami(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	authCtx, ok := oauth.AuthContextFrom(ctx)
	if !ok {
		s.logger.Warn("whoami called without an authenticated principal")
		return mcp.NewToolResultError("not authenticated"), nil
	}

	data, err := json.MarshalIndent(whoamiResult{
		UserID:      authCtx.UserID,
		AuthMethod:  authCtx.AuthMethod,
		ClientID:    authCtx.ClientID,
		Scope:       authCtx.Scope,
		Permissions: authCtx.Permissions,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/security"
	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// Token prefixes make credentials recognizable in logs and secret scanners.
const (
	AccessTokenPrefix  = "mcp_at_"
	RefreshTokenPrefix = "mcp_rt_"
	APIKeyPrefix       = "mcp_ak_"
)

// logPrefixLength is how much of a code or token is logged.
const logPrefixLength = 8

// Server implements the OAuth 2.1 authorization server logic.
type Server struct {
	registry *Registry
	records  *storage.Records

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	tracer  trace.Tracer
	metrics *instrumentation.Metrics
	now     func() time.Time
}

// New creates a new OAuth server.
func New(registry *Registry, records *storage.Records, config *Config, logger *slog.Logger) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config)
	if err := validateHTTPSEnforcement(config, logger); err != nil {
		return nil, err
	}

	return &Server{
		registry: registry,
		records:  records,
		Logger:   logger,
		Config:   config,
		tracer:   noop.NewTracerProvider().Tracer(""),
		now:      time.Now,
	}, nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables spans and metrics for server operations and
// publishes the registry size gauge.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) error {
	s.Instrumentation = inst
	if inst == nil {
		s.tracer = noop.NewTracerProvider().Tracer("")
		s.metrics = nil
		return nil
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
	return inst.RegisterRegistrySizeCallback(func() int64 { return int64(s.registry.Len()) })
}

// SetClock overrides the time source used for record timestamps.
func (s *Server) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// Registry returns the client registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Records returns the typed record store.
func (s *Server) Records() *storage.Records {
	return s.records
}

// Ping checks the credential store.
func (s *Server) Ping(ctx context.Context) error {
	if err := s.records.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// generateRandomToken returns 256 bits of randomness, base64url encoded.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

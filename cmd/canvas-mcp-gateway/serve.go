package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	oauth "github.com/a-ariff/canvas-student-mcp-server"
	"github.com/a-ariff/canvas-student-mcp-server/instrumentation"
	"github.com/a-ariff/canvas-student-mcp-server/internal/config"
	"github.com/a-ariff/canvas-student-mcp-server/internal/mcpserver"
	"github.com/a-ariff/canvas-student-mcp-server/security"
)

const (
	metricsPath       = "/metrics"
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the OAuth server and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger, nil)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}

// gateway is the assembled HTTP surface. close releases everything but
// the MCP sessions.
type gateway struct {
	handler http.Handler
	mcp     *mcpserver.Server
	close   func(context.Context)
}

// buildGateway wires the store, the OAuth server and the MCP endpoint.
func buildGateway(cfg config.Config, logger *slog.Logger) (*gateway, error) {
	inst, err := instrumentation.New(cfg.InstrumentationConfig(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	kv, closeStore, err := openStore(cfg.Store, logger)
	if err != nil {
		_ = inst.Shutdown(context.Background())
		return nil, err
	}

	cleanup := func(ctx context.Context) {
		closeStore()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}

	encryptor, err := cfg.Encryptor()
	if err != nil {
		cleanup(context.Background())
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}

	srv, err := oauth.NewServer(kv, cfg.ServerConfig(), logger, oauth.ServerOptions{
		Clients:         cfg.RegistryClients(),
		Encryptor:       encryptor,
		Auditor:         security.NewAuditor(logger, cfg.Audit.Enabled),
		Instrumentation: inst,
	})
	if err != nil {
		cleanup(context.Background())
		return nil, err
	}

	handler := oauth.NewHandler(srv, &oauth.HandlerConfig{
		CORS: oauth.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
	}, logger)

	var limiter *security.RateLimiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = security.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
		handler.SetRateLimiter(limiter)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	mcp := mcpserver.New(mcpserver.Config{
		Version: version,
		BaseURL: cfg.Issuer,
		Logger:  logger,
	})
	mcp.Register(mux, handler.ValidateToken)

	if cfg.Instrumentation.Enabled && cfg.Instrumentation.MetricsExporter == instrumentation.ExporterPrometheus {
		mux.Handle(metricsPath, promhttp.Handler())
	}

	logger.Info("Gateway configured",
		"issuer", cfg.Issuer,
		"store", cfg.Store.Backend,
		"clients", srv.Registry().Len(),
		"encryption", encryptor.IsEnabled(),
		"rate_limit", limiter != nil,
	)

	return &gateway{
		handler: security.RequestIDMiddleware(mux),
		mcp:     mcp,
		close: func(ctx context.Context) {
			if limiter != nil {
				limiter.Stop()
				logger.Debug("Rate limiter stopped", "tracked_ips", limiter.Len(), "evictions", limiter.Evictions())
			}
			cleanup(ctx)
		},
	}, nil
}

// runServe serves until ctx is done. A nil listener listens on cfg.Listen.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, ln net.Listener) error {
	gw, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	if ln == nil {
		ln, err = net.Listen("tcp", cfg.Listen)
		if err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			gw.close(shutdownCtx)
			return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
		}
	}

	// No write timeout: SSE streams stay open.
	httpServer := &http.Server{
		Handler:           gw.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		defer gw.close(shutdownCtx)

		// Open SSE streams would hold Shutdown until the timeout.
		if err := gw.mcp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("MCP shutdown failed", "error", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/a-ariff/canvas-student-mcp-server/internal/config"
)

// Log output formats
const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "canvas-mcp-gateway",
		Short: "OAuth 2.1 gateway for the Canvas student MCP server",
		Long: `canvas-mcp-gateway issues OAuth 2.1 credentials to MCP hosts using the
authorization code flow with PKCE and serves the MCP endpoint behind
bearer token or API key authentication.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "canvas-mcp-gateway version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", logFormatText, "log format (text, json)")

	cmd.AddCommand(
		newServeCmd(opts),
		newPKCECmd(),
		newKeygenCmd(),
		newAPIKeyCmd(opts),
		newClientsCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// load reads the configuration and builds the logger.
func (o *rootOptions) load(w io.Writer) (config.Config, *slog.Logger, error) {
	logger, err := newLogger(w, o.logLevel, o.logFormat)
	if err != nil {
		return config.Config{}, nil, err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case logFormatJSON:
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	case logFormatText, "":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of canvas-mcp-gateway",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "canvas-mcp-gateway version %s\n", version)
		},
	}
}

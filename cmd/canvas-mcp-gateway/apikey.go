package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	oauth "github.com/a-ariff/canvas-student-mcp-server"
	"github.com/a-ariff/canvas-student-mcp-server/internal/config"
)

func newAPIKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage static API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(opts))
	return cmd
}

func newAPIKeyCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		userID      string
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key in the configured store",
		Long: `create stores a new API key and prints it once. The key is sent in the
X-API-Key header as an alternative to an OAuth access token. The store must be
shared with the running gateway, so the memory backend is rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Store.Backend == config.BackendMemory || cfg.Store.Backend == "" {
				return fmt.Errorf("api keys need a shared store, configure %s or %s", config.BackendValkey, config.BackendRedis)
			}
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user must not be empty")
			}

			kv, closeStore, err := openStore(cfg.Store, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			encryptor, err := cfg.Encryptor()
			if err != nil {
				return fmt.Errorf("invalid encryption key: %w", err)
			}

			srv, err := oauth.NewServer(kv, cfg.ServerConfig(), logger, oauth.ServerOptions{
				Clients:   cfg.RegistryClients(),
				Encryptor: encryptor,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			key, record, err := srv.CreateAPIKey(ctx, userID, permissions, ttl)
			if err != nil {
				return fmt.Errorf("failed to create api key: %w", err)
			}
			logger.Info("API key created", "user_id", record.UserID, "key_id", record.ID)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, key)
			if ttl > 0 {
				fmt.Fprintf(out, "expires %s\n", time.Now().Add(ttl).UTC().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user the key authenticates as")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "permission granted to the key (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "key lifetime, 0 for no expiry")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/a-ariff/canvas-student-mcp-server/internal/config"
	"github.com/a-ariff/canvas-student-mcp-server/security"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an encryption key for records at rest",
		Long: fmt.Sprintf(`keygen prints a random AES-256 key in base64. Set it as encryption_key
in the configuration file or as %s.`, config.EnvEncryptionKey),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := security.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), security.KeyToBase64(key))
			return nil
		},
	}
}

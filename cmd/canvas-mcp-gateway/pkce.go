package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/a-ariff/canvas-student-mcp-server/server"
)

func newPKCECmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pkce [verifier]",
		Short: "Generate a PKCE code verifier and its S256 challenge",
		Long: `pkce prints a code_verifier and the matching S256 code_challenge for
testing the authorization flow by hand. Pass a verifier to compute only its
challenge.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verifier := oauth2.GenerateVerifier()
			if len(args) == 1 {
				verifier = args[0]
			}
			if verifier == "" {
				return fmt.Errorf("verifier must not be empty")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "code_verifier=%s\n", verifier)
			fmt.Fprintf(out, "code_challenge=%s\n", oauth2.S256ChallengeFromVerifier(verifier))
			fmt.Fprintf(out, "code_challenge_method=%s\n", server.PKCEMethodS256)
			return nil
		},
	}
}

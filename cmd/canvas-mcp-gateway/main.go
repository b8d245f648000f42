// Command canvas-mcp-gateway runs the OAuth 2.1 authorization server and
// the authenticated MCP endpoint for Canvas student tools.
package main

import (
	"context"
	"os"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

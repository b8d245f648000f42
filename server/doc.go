// Package server implements the core OAuth 2.1 authorization server logic
// for the Canvas MCP gateway.
//
// The Server type validates authorization requests against a client
// Registry, persists single-use authorization codes, and exchanges codes
// (with a PKCE verifier) or refresh tokens for opaque bearer tokens. All
// credentials live in a storage.KV under namespaced keys.
//
// Key Features:
//   - PKCE is mandatory and only S256 is accepted
//   - Exact-match redirect URIs, checked at authorize and again at exchange
//   - At most one redemption per authorization code, even under concurrency
//   - Refresh tokens are long-lived and reusable (not rotated)
//   - Constant-time client secret comparison
//   - Security auditing, tracing and metrics
//
// Example usage:
//
//	store := memory.New()
//	registry := server.NewRegistry(server.DefaultClient())
//
//	srv, err := server.New(registry, storage.NewRecords(store), &server.Config{
//	    Issuer: "https://mcp.example.com",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server

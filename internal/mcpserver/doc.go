// Package mcpserver exposes the gateway's MCP endpoint.
//
// The MCP server is served over both transports MCP hosts use: streamable
// HTTP on /mcp and server-sent events on /sse with messages posted to
// /sse/message. Every route is wrapped by the caller's authentication
// middleware; tools read the authenticated principal from the request
// context with oauth.AuthContextFrom.
//
// The Canvas tool surface lives outside this module. The server registers
// a single whoami tool so hosts can verify their credentials end to end.
package mcpserver

// Package testutil provides testing utilities for the gateway: a
// controllable clock, PKCE fixtures, and an HTTP request builder.
package testutil

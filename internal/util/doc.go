// Package util holds small helpers shared by the gateway packages.
//
//   - SafeTruncate: prefixes of credentials for log lines
//   - IsLoopbackHost: issuer and redirect URI checks for local development
package util

package util

import (
	"net"
	"strings"
)

// SafeTruncate returns at most maxLen bytes of s. It is used to log a
// recognizable prefix of codes and tokens without exposing the full value.
//
//	SafeTruncate("mcp_at_abcdef123", 10) // "mcp_at_abc"
//	SafeTruncate("short", 10)            // "short"
//	SafeTruncate("test", -1)             // ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TrimTrailingSlash removes every trailing slash so that issuer URLs
// concatenate cleanly with endpoint paths.
func TrimTrailingSlash(u string) string {
	return strings.TrimRight(u, "/")
}

// IsLoopbackHost reports whether hostname (without port) names the local
// machine: "localhost", anything in 127.0.0.0/8, or ::1.
func IsLoopbackHost(hostname string) bool {
	if hostname == "localhost" {
		return true
	}
	h := strings.TrimSuffix(strings.TrimPrefix(hostname, "["), "]")
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

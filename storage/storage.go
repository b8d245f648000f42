package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by KV.Get for a key that is missing or expired.
var ErrNotFound = errors.New("storage: key not found")

// KV is a key-value store with per-key expiry.
//
// Implementations must guarantee that a key written with a TTL is no longer
// readable once the TTL has elapsed, and that Delete is atomic: when several
// callers delete the same key concurrently, exactly one of them observes
// existed == true. The authorization code exchange relies on that to allow
// at most one redemption per code.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key for ttl. A ttl <= 0 stores without expiry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key and reports whether it existed (and had not expired).
	Delete(ctx context.Context, key string) (existed bool, err error)
}

// Pinger is implemented by KV adapters that can check backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key namespaces.
const (
	NamespaceAuthCode     = "auth_code"
	NamespaceAccessToken  = "token"
	NamespaceRefreshToken = "refresh"
	NamespaceAPIKey       = "apikey"
)

// AuthCodeKey returns the key of an authorization code record.
func AuthCodeKey(code string) string { return NamespaceAuthCode + ":" + code }

// AccessTokenKey returns the key of an access token record.
func AccessTokenKey(token string) string { return NamespaceAccessToken + ":" + token }

// RefreshTokenKey returns the key of a refresh token record.
func RefreshTokenKey(token string) string { return NamespaceRefreshToken + ":" + token }

// APIKeyKey returns the key of an API key record.
func APIKeyKey(key string) string { return NamespaceAPIKey + ":" + key }

// Namespace returns the namespace part of key, for metrics and spans.
func Namespace(key string) string {
	ns, _, found := strings.Cut(key, ":")
	if !found {
		return "unknown"
	}
	return ns
}

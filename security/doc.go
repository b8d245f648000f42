// Package security contains the protective pieces around the authorization
// endpoints of the gateway.
//
// # Audit
//
// Auditor writes one structured "security_audit" record per security event
// (codes issued, tokens minted, failed client authentication, PKCE failures,
// replayed codes). User identifiers are hashed before they reach the log.
//
// # Secrets
//
// SecretsEqual compares client secrets over fixed-length SHA-256 digests with
// crypto/subtle, so neither the length nor the content of the configured
// secret leaks through timing. Secrets that are generated by the server are
// only ever stored as bcrypt hashes (HashSecret / CompareSecretHash).
//
// # Encryption at rest
//
// Encryptor seals KV records with AES-256-GCM when a 32 byte key is
// configured and is a pass-through otherwise.
//
// # Rate limiting
//
// RateLimiter keeps one token bucket per identifier (normally the client IP)
// with LRU eviction so that a flood of distinct addresses cannot grow memory
// without bound:
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // 429
//	}
package security

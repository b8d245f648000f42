// Package storage defines the key-value capability the authorization server
// persists to, and the typed records stored in it.
//
// Every credential lives under a namespaced key:
//
//	auth_code:{code}      AuthorizationCode, 10 minute TTL, single use
//	token:{access_token}  TokenRecord, 1 hour TTL
//	refresh:{token}       TokenRecord, 30 day TTL
//	apikey:{key}          APIKey
//
// Values are JSON, optionally sealed with AES-256-GCM (see Records).
//
// Adapters live in subpackages:
//   - storage/memory: in-process TTL cache for development and tests
//   - storage/valkey: Valkey
//   - storage/redis: Redis
//   - storage/mock: programmable KV for failure-path tests
//   - storage/storagetest: conformance suite every adapter runs
package storage

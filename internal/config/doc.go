// Package config loads the gateway process configuration.
//
// Settings come from an optional YAML file and are then overridden by
// environment variables:
//
//	OAUTH_ISSUER          issuer URL
//	OAUTH_CLIENT_ID       registers a confidential client together with
//	OAUTH_CLIENT_SECRET   its secret
//	OAUTH_ENCRYPTION_KEY  base64 AES-256 key for records at rest
//	VALKEY_ADDR           selects the valkey backend at this address
//	REDIS_ADDR            selects the redis backend at this address
//
// A missing file is not an error; the defaults describe a local
// development server on the in-memory store.
package config

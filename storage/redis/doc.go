// Package redis provides a Redis-backed storage.KV built on go-redis.
//
// It mirrors storage/valkey for deployments that already run Redis:
// expiry is enforced by the server and Delete relies on the integer reply
// of DEL.
package redis

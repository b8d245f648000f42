// Package memory provides an in-process storage.KV backed by a TTL cache.
//
// It is suitable for development, testing, and single-instance deployments
// where persistence is not required. Expired entries are unreadable at once
// and are evicted by a background loop that runs until Stop is called.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	records := storage.NewRecords(store)
//
// For multi-instance deployments use storage/valkey or storage/redis.
package memory

package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// Store is an in-memory storage.KV.
type Store struct {
	cache    *ttlcache.Cache[string, []byte]
	logger   *slog.Logger
	stopOnce sync.Once
}

var (
	_ storage.KV     = (*Store)(nil)
	_ storage.Pinger = (*Store)(nil)
)

// New creates a store and starts its expiry loop.
func New() *Store {
	return NewWithLogger(slog.Default())
}

// NewWithLogger creates a store that logs evictions of expired entries at
// debug level.
func NewWithLogger(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	cache := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, []byte]) {
		if reason == ttlcache.EvictionReasonExpired {
			logger.Debug("Expired entry evicted", "namespace", storage.Namespace(item.Key()))
		}
	})

	s := &Store{
		cache:  cache,
		logger: logger,
	}
	go cache.Start()
	return s
}

// Stop stops the expiry loop. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(s.cache.Stop)
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries, including expired entries not
// yet evicted.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, storage.ErrNotFound
	}
	return clone(item.Value()), nil
}

// Put stores a copy of value under key. A ttl <= 0 never expires.
func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.cache.Set(key, clone(value), ttl)
	return nil
}

// Delete removes key. GetAndDelete runs under the cache lock, so only one of
// several concurrent callers sees existed == true.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	item, present := s.cache.GetAndDelete(key)
	if !present || item == nil {
		return false, nil
	}
	return !item.IsExpired(), nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

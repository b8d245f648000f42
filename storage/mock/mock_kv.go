// Package mock provides a programmable storage.KV for testing failure paths.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// KV is a map-backed storage.KV whose operations can be overridden per test.
// Expiry is evaluated against Now, so tests can move time forward without
// sleeping.
type KV struct {
	mu      sync.Mutex
	entries map[string]entry

	// Now returns the current time (default time.Now).
	Now func() time.Time

	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	PutFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteFunc func(ctx context.Context, key string) (bool, error)

	CallCounts map[string]int
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

var _ storage.KV = (*KV)(nil)

// NewKV creates a mock KV with working default implementations.
func NewKV() *KV {
	m := &KV{
		entries:    make(map[string]entry),
		Now:        time.Now,
		CallCounts: make(map[string]int),
	}

	m.GetFunc = func(_ context.Context, key string) ([]byte, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		e, ok := m.entries[key]
		if !ok || m.expired(e) {
			return nil, storage.ErrNotFound
		}
		return append([]byte(nil), e.value...), nil
	}

	m.PutFunc = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		e := entry{value: append([]byte(nil), value...)}
		if ttl > 0 {
			e.expiresAt = m.Now().Add(ttl)
		}
		m.entries[key] = e
		return nil
	}

	m.DeleteFunc = func(_ context.Context, key string) (bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		e, ok := m.entries[key]
		if !ok {
			return false, nil
		}
		delete(m.entries, key)
		return !m.expired(e), nil
	}

	return m
}

// expired must be called with mu held.
func (m *KV) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !m.Now().Before(e.expiresAt)
}

// FailWith makes every operation return err.
func (m *KV) FailWith(err error) {
	m.GetFunc = func(context.Context, string) ([]byte, error) { return nil, err }
	m.PutFunc = func(context.Context, string, []byte, time.Duration) error { return err }
	m.DeleteFunc = func(context.Context, string) (bool, error) { return false, err }
}

// Keys returns the stored keys that have not expired.
func (m *KV) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if !m.expired(e) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Raw returns the stored bytes for key without copying or expiry checks.
func (m *KV) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e.value, ok
}

func (m *KV) count(op string) {
	m.mu.Lock()
	m.CallCounts[op]++
	m.mu.Unlock()
}

// Get implements storage.KV.
func (m *KV) Get(ctx context.Context, key string) ([]byte, error) {
	m.count("Get")
	return m.GetFunc(ctx, key)
}

// Put implements storage.KV.
func (m *KV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.count("Put")
	return m.PutFunc(ctx, key, value, ttl)
}

// Delete implements storage.KV.
func (m *KV) Delete(ctx context.Context, key string) (bool, error) {
	m.count("Delete")
	return m.DeleteFunc(ctx, key)
}

// Calls returns how many times op ("Get", "Put", "Delete") was called.
func (m *KV) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[op]
}

// Package storagetest provides a conformance suite for storage.KV
// implementations.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-ariff/canvas-student-mcp-server/storage"
)

// RunKVTests runs the conformance suite. newKV must return an empty store
// isolated from other tests.
func RunKVTests(t *testing.T, newKV func(t *testing.T) storage.KV) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		kv := newKV(t)
		_, err := kv.Get(context.Background(), "auth_code:missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()

		require.NoError(t, kv.Put(ctx, "token:a", []byte(`{"client_id":"c1"}`), time.Minute))

		got, err := kv.Get(ctx, "token:a")
		require.NoError(t, err)
		assert.Equal(t, `{"client_id":"c1"}`, string(got))
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()

		require.NoError(t, kv.Put(ctx, "token:a", []byte("one"), time.Minute))
		require.NoError(t, kv.Put(ctx, "token:a", []byte("two"), time.Minute))

		got, err := kv.Get(ctx, "token:a")
		require.NoError(t, err)
		assert.Equal(t, "two", string(got))
	})

	t.Run("BinaryValue", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		value := []byte{0x00, 0xff, 0x10, '\n', 0x7f}

		require.NoError(t, kv.Put(ctx, "apikey:bin", value, time.Minute))

		got, err := kv.Get(ctx, "apikey:bin")
		require.NoError(t, err)
		assert.Equal(t, value, got)
	})

	t.Run("DeleteReportsExistence", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()

		require.NoError(t, kv.Put(ctx, "auth_code:x", []byte("v"), time.Minute))

		existed, err := kv.Delete(ctx, "auth_code:x")
		require.NoError(t, err)
		assert.True(t, existed)

		existed, err = kv.Delete(ctx, "auth_code:x")
		require.NoError(t, err)
		assert.False(t, existed)

		_, err = kv.Get(ctx, "auth_code:x")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		kv := newKV(t)
		existed, err := kv.Delete(context.Background(), "auth_code:never")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("Expiry", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()

		require.NoError(t, kv.Put(ctx, "auth_code:short", []byte("v"), 200*time.Millisecond))

		require.Eventually(t, func() bool {
			_, err := kv.Get(ctx, "auth_code:short")
			return errors.Is(err, storage.ErrNotFound)
		}, 3*time.Second, 50*time.Millisecond)

		existed, err := kv.Delete(ctx, "auth_code:short")
		require.NoError(t, err)
		assert.False(t, existed, "an expired key must not count as existing")
	})

	t.Run("ZeroTTLDoesNotExpire", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()

		require.NoError(t, kv.Put(ctx, "apikey:forever", []byte("v"), 0))
		time.Sleep(50 * time.Millisecond)

		_, err := kv.Get(ctx, "apikey:forever")
		assert.NoError(t, err)
	})

	t.Run("ConcurrentDeleteSingleWinner", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()

		require.NoError(t, kv.Put(ctx, "auth_code:race", []byte("v"), time.Minute))

		const workers = 32
		var (
			wg      sync.WaitGroup
			winners atomic.Int32
			start   = make(chan struct{})
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				existed, err := kv.Delete(ctx, "auth_code:race")
				if err == nil && existed {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	})
}

package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

// storeTests runs the common suite against any Store implementation.
func storeTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		store := newStore(t)

		record := NewRecord("sess-1", "tok1", "alice", time.Hour)
		record.IPAddress = "192.0.2.10"
		record.UserAgent = "curl/8.5"
		require.NoError(t, store.Put(ctx, record))

		got, err := store.Get(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "tok1", got.AccessToken)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "192.0.2.10", got.IPAddress)
		assert.Equal(t, "curl/8.5", got.UserAgent)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(ctx, "no-such-session")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Put(ctx, NewRecord("sess-ow", "tok-v1", "alice", time.Hour)))
		require.NoError(t, store.Put(ctx, NewRecord("sess-ow", "tok-v2", "bob", time.Hour)))

		got, err := store.Get(ctx, "sess-ow")
		require.NoError(t, err)
		assert.Equal(t, "tok-v2", got.AccessToken)
		assert.Equal(t, "bob", got.Username)
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		store := newStore(t)

		ok, err := store.PutIfAbsent(ctx, NewRecord("sess-nx", "tok-first", "alice", time.Hour))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.PutIfAbsent(ctx, NewRecord("sess-nx", "tok-second", "mallory", time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.Get(ctx, "sess-nx")
		require.NoError(t, err)
		assert.Equal(t, "tok-first", got.AccessToken, "losing write must not overwrite")
	})

	t.Run("ExpiredRecordReadsAsMissing", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Put(ctx, NewRecord("sess-exp", "tok", "alice", 30*time.Millisecond)))
		time.Sleep(60 * time.Millisecond)

		_, err := store.Get(ctx, "sess-exp")
		assert.ErrorIs(t, err, ErrSessionNotFound)

		// The expired entry no longer blocks the ID.
		ok, err := store.PutIfAbsent(ctx, NewRecord("sess-exp", "tok-new", "alice", time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("TTLBoundary", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Put(ctx, NewRecord("sess-ttl", "tok", "alice", 200*time.Millisecond)))

		// Before expiry the record is retrievable.
		time.Sleep(100 * time.Millisecond)
		_, err := store.Get(ctx, "sess-ttl")
		require.NoError(t, err)

		// After expiry it is gone.
		time.Sleep(150 * time.Millisecond)
		_, err = store.Get(ctx, "sess-ttl")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Put(ctx, NewRecord("sess-del", "tok", "alice", time.Hour)))

		removed, err := store.Delete(ctx, "sess-del")
		require.NoError(t, err)
		assert.True(t, removed)

		_, err = store.Get(ctx, "sess-del")
		assert.ErrorIs(t, err, ErrSessionNotFound)

		removed, err = store.Delete(ctx, "sess-del")
		require.NoError(t, err)
		assert.False(t, removed, "second delete has nothing left to remove")
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		store := newStore(t)

		removed, err := store.Delete(ctx, "never-existed")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Put(ctx, NewRecord("sess-l1", "t1", "alice", time.Hour)))
		require.NoError(t, store.Put(ctx, NewRecord("sess-l2", "t2", "bob", time.Hour)))

		records, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)

		ids := make(map[string]bool, len(records))
		for _, record := range records {
			ids[record.ID] = true
		}

		assert.True(t, ids["sess-l1"])
		assert.True(t, ids["sess-l2"])
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	storeTests(t, func(t *testing.T) Store {
		t.Helper()

		return NewMemoryStore(testLogger())
	})
}

func TestMemoryStorePutIfAbsentConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testLogger())

	const attempts = 32

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			ok, err := store.PutIfAbsent(ctx, NewRecord("sess-race", fmt.Sprintf("tok-%d", n), "alice", time.Hour))
			if err == nil && ok {
				wins.Add(1)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), wins.Load(), "exactly one concurrent writer may claim an id")
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testLogger())

	require.NoError(t, store.Put(ctx, NewRecord("sess-cp", "tok", "alice", time.Hour)))

	first, err := store.Get(ctx, "sess-cp")
	require.NoError(t, err)
	first.AccessToken = "scribbled"

	second, err := store.Get(ctx, "sess-cp")
	require.NoError(t, err)
	assert.Equal(t, "tok", second.AccessToken, "caller mutation must not reach the store")
}

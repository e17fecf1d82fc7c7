package session

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore(testLogger())

	return NewManager(testLogger(), store, 0), store
}

func TestGenerateID(t *testing.T) {
	manager, _ := newTestManager(t)

	seen := make(map[string]bool, 100)

	for i := 0; i < 100; i++ {
		id, err := manager.GenerateID()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(id)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		assert.False(t, seen[id], "generated ids must not repeat")
		seen[id] = true
	}
}

func TestManagerCreate(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	before := time.Now()
	record, err := manager.Create(ctx, CreateParams{
		AccessToken: "tok1",
		Username:    "alice",
		IPAddress:   "192.0.2.10",
		UserAgent:   "curl/8.5",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "tok1", record.AccessToken)
	assert.Equal(t, "alice", record.Username)
	assert.Equal(t, "192.0.2.10", record.IPAddress)
	assert.Equal(t, "curl/8.5", record.UserAgent)
	assert.False(t, record.CreatedAt.Before(before))
	assert.WithinDuration(t, record.CreatedAt.Add(DefaultTTL), record.ExpiresAt, time.Second)

	got, err := manager.Validate(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestManagerCreateThenExpire(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	record, err := manager.Create(ctx, CreateParams{
		AccessToken: "tok1",
		Username:    "alice",
		TTL:         150 * time.Millisecond,
	})
	require.NoError(t, err)

	got, err := manager.Validate(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	time.Sleep(200 * time.Millisecond)

	_, err = manager.Validate(ctx, record.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerCreateWithID(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	ok, err := manager.CreateWithID(ctx, "fixed-id", CreateParams{AccessToken: "tok-first", Username: "alice"})
	require.NoError(t, err)
	require.True(t, ok)

	// A second create under a live id is rejected without overwriting.
	ok, err = manager.CreateWithID(ctx, "fixed-id", CreateParams{AccessToken: "tok-second", Username: "mallory"})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := manager.Validate(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "tok-first", got.AccessToken)
	assert.Equal(t, "alice", got.Username)

	// Once deleted, the id is free again.
	removed, err := manager.Delete(ctx, "fixed-id")
	require.NoError(t, err)
	require.True(t, removed)

	ok, err = manager.CreateWithID(ctx, "fixed-id", CreateParams{AccessToken: "tok-third", Username: "bob"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManagerCreateWithIDAfterExpiry(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	ok, err := manager.CreateWithID(ctx, "reused-id", CreateParams{
		AccessToken: "tok-old",
		Username:    "alice",
		TTL:         30 * time.Millisecond,
	})
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	ok, err = manager.CreateWithID(ctx, "reused-id", CreateParams{AccessToken: "tok-new", Username: "alice"})
	require.NoError(t, err)
	assert.True(t, ok, "an expired session must not block its id")
}

func TestManagerValidateMissing(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	_, err := manager.Validate(ctx, "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerValidateSweepsExpired(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)

	// Seed an already-expired record directly into the store.
	require.NoError(t, store.Put(ctx, NewRecord("sess-stale", "tok", "bob", -time.Second)))

	_, err := manager.Validate(ctx, "unrelated-id")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The sweep fronting Validate removed the stale record.
	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManagerUpdate(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	record, err := manager.Create(ctx, CreateParams{
		AccessToken: "tok-old",
		Username:    "alice",
		IPAddress:   "192.0.2.10",
	})
	require.NoError(t, err)

	// Without a TTL the expiry stays put.
	ok, err := manager.Update(ctx, record.ID, UpdateParams{AccessToken: "tok-new", Username: "alice2"})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := manager.Validate(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", got.AccessToken)
	assert.Equal(t, "alice2", got.Username)
	assert.True(t, got.CreatedAt.Equal(record.CreatedAt), "updates preserve CreatedAt")
	assert.True(t, got.ExpiresAt.Equal(record.ExpiresAt), "expiry untouched without a TTL")
	assert.Equal(t, "192.0.2.10", got.IPAddress, "updates preserve provenance metadata")

	// With a TTL the expiry renews from now.
	ok, err = manager.Update(ctx, record.ID, UpdateParams{AccessToken: "tok-new2", Username: "alice2", TTL: 2 * time.Hour})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = manager.Validate(ctx, record.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), got.ExpiresAt, time.Second)
	assert.True(t, got.CreatedAt.Equal(record.CreatedAt))
}

func TestManagerUpdateMissing(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)

	ok, err := manager.Update(ctx, "no-such-session", UpdateParams{AccessToken: "tok", Username: "alice"})
	require.NoError(t, err)
	assert.False(t, ok, "update is not an upsert")

	// Nothing was written.
	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestManagerUpdateExpired(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, NewRecord("sess-stale", "tok", "alice", -time.Second)))

	ok, err := manager.Update(ctx, "sess-stale", UpdateParams{AccessToken: "tok-new", Username: "alice"})
	require.NoError(t, err)
	assert.False(t, ok, "an expired session cannot be updated back to life")
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	record, err := manager.Create(ctx, CreateParams{AccessToken: "tok", Username: "alice"})
	require.NoError(t, err)

	removed, err := manager.Delete(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = manager.Delete(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, removed, "deleting an absent session reports false, not an error")
}

func TestManagerDeleteForUser(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	_, err := manager.Create(ctx, CreateParams{AccessToken: "t1", Username: "alice"})
	require.NoError(t, err)
	_, err = manager.Create(ctx, CreateParams{AccessToken: "t2", Username: "alice"})
	require.NoError(t, err)
	bob, err := manager.Create(ctx, CreateParams{AccessToken: "t3", Username: "bob"})
	require.NoError(t, err)

	removed, err := manager.DeleteForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := manager.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = manager.Validate(ctx, bob.ID)
	assert.NoError(t, err, "other users' sessions survive")
}

func TestManagerSweep(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, NewRecord("stale-1", "t", "alice", -time.Minute)))
	require.NoError(t, store.Put(ctx, NewRecord("stale-2", "t", "bob", -time.Minute)))
	require.NoError(t, store.Put(ctx, NewRecord("stale-3", "t", "carol", -time.Minute)))
	require.NoError(t, store.Put(ctx, NewRecord("live-1", "t", "dave", time.Hour)))

	removed, err := manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	// Sweeping again finds nothing; the live record survives both passes.
	removed, err = manager.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = manager.Validate(ctx, "live-1")
	assert.NoError(t, err)
}

func TestManagerCount(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)

	require.NoError(t, store.Put(ctx, NewRecord("live-1", "t", "alice", time.Hour)))
	require.NoError(t, store.Put(ctx, NewRecord("live-2", "t", "bob", time.Hour)))
	require.NoError(t, store.Put(ctx, NewRecord("stale-1", "t", "carol", -time.Second)))

	count, err := manager.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestManagerStoreUnavailable(t *testing.T) {
	ctx := context.Background()

	store, srv := newTestRedisStore(t)
	manager := NewManager(testLogger(), store, 0)

	srv.Close()

	_, err := manager.Create(ctx, CreateParams{AccessToken: "tok", Username: "alice"})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = manager.Validate(ctx, "sess-any")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrSessionNotFound)

	_, err = manager.Count(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

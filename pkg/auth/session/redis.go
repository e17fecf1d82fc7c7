// Package session provides session storage and lifecycle management for
// the GitHub App integration.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultKeyPrefix namespaces session keys in a shared Redis keyspace.
const DefaultKeyPrefix = "session:"

// scanBatchSize is the COUNT hint passed to SCAN when listing sessions.
const scanBatchSize = 100

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on a Redis keyspace, one key per session.
// Records are stored as JSON under <prefix><id> with a server-side TTL
// mirroring the record's expiry, so abandoned sessions age out of Redis
// even if nothing sweeps them. Logical expiry is still enforced on every
// read against the record's own ExpiresAt.
type RedisStore struct {
	log    logrus.FieldLogger
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store on the given client. An empty
// prefix falls back to DefaultKeyPrefix.
func NewRedisStore(log logrus.FieldLogger, client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	return &RedisStore{
		log:    log.WithField("component", "redis_store"),
		client: client,
		prefix: prefix,
	}
}

// key returns the Redis key for a session ID.
func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// Put writes a record unconditionally.
func (s *RedisStore) Put(ctx context.Context, record *Record) error {
	payload, ttl, err := s.encode(record)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		// Writing an already-expired record would be invisible to every
		// read; make sure no stale entry lingers instead.
		if _, err := s.Delete(ctx, record.ID); err != nil {
			return err
		}

		return nil
	}

	if err := s.client.Set(ctx, s.key(record.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis set: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// PutIfAbsent writes a record only if no live record exists under its ID,
// using SET NX so the check and the write are one atomic command.
func (s *RedisStore) PutIfAbsent(ctx context.Context, record *Record) (bool, error) {
	payload, ttl, err := s.encode(record)
	if err != nil {
		return false, err
	}

	if ttl <= 0 {
		// An already-expired record would be invisible to every read;
		// treat the write as done without touching Redis.
		return true, nil
	}

	ok, err := s.client.SetNX(ctx, s.key(record.ID), payload, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: redis setnx: %v", ErrStoreUnavailable, err)
	}

	return ok, nil
}

// Get retrieves the live record for an ID. Unparseable values are deleted
// so the next read is a clean miss.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: redis get: %v", ErrStoreUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		s.log.WithError(err).WithField("session_id", shortID(id)).Warn("Removing unparseable session record")
		s.client.Del(ctx, s.key(id))

		return nil, ErrSessionNotFound
	}

	if record.IsExpired() {
		s.client.Del(ctx, s.key(id))

		return nil, ErrSessionNotFound
	}

	return &record, nil
}

// Delete removes the entry for an ID, reporting whether a live record was
// removed. GETDEL keeps the read and the removal atomic.
func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	payload, err := s.client.GetDel(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("%w: redis getdel: %v", ErrStoreUnavailable, err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return false, nil
	}

	return !record.IsExpired(), nil
}

// List scans the session keyspace and returns every record that still
// parses, expired records included. Unparseable values are deleted as they
// are found.
func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	var (
		records []*Record
		cursor  uint64
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: redis scan: %v", ErrStoreUnavailable, err)
		}

		for _, key := range keys {
			payload, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				// Deleted between the scan and the read.
				continue
			}

			if err != nil {
				return nil, fmt.Errorf("%w: redis get: %v", ErrStoreUnavailable, err)
			}

			var record Record
			if err := json.Unmarshal(payload, &record); err != nil {
				s.log.WithError(err).WithField("key", key).Warn("Removing unparseable session record")
				s.client.Del(ctx, key)

				continue
			}

			records = append(records, &record)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return records, nil
}

// Ping verifies the Redis server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// encode serializes a record and derives the server-side TTL from its
// expiry.
func (s *RedisStore) encode(record *Record) ([]byte, time.Duration, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: encoding record: %v", ErrStoreUnavailable, err)
	}

	return payload, time.Until(record.ExpiresAt), nil
}

// Package session provides session storage and lifecycle management for
// the GitHub App integration.
package session

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/config"
)

// Store is the storage substrate for session records. It is the only
// component that touches the substrate; the Manager and everything above
// it stay substrate-agnostic.
type Store interface {
	// Put writes a record unconditionally, overwriting any existing record
	// under the same ID.
	Put(ctx context.Context, record *Record) error

	// PutIfAbsent writes a record only if no live record exists under its
	// ID, as a single atomic step. It returns false and writes nothing
	// when a live record is already present. An expired leftover under the
	// same ID does not block the write.
	PutIfAbsent(ctx context.Context, record *Record) (bool, error)

	// Get retrieves the live record for an ID. Absent, expired and
	// unparseable entries all read as ErrSessionNotFound; expired and
	// unparseable entries are removed on the way out.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes the entry for an ID, reporting whether a live record
	// was removed. Deleting an absent ID or an expired leftover reports
	// false without error.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns every stored record that still parses, expired records
	// included, in no particular order. Unparseable entries are removed as
	// they are found. Sweeping expired records is the caller's concern.
	List(ctx context.Context) ([]*Record, error)

	// Ping verifies the substrate is reachable.
	Ping(ctx context.Context) error
}

// New creates the store for the configured backend.
func New(log logrus.FieldLogger, cfg config.SessionsConfig) (Store, error) {
	switch cfg.Backend {
	case config.SessionBackendMemory:
		return NewMemoryStore(log), nil
	case config.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		return NewRedisStore(log, client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Backend)
	}
}

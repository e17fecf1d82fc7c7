// Package session provides session storage and lifecycle management for
// the GitHub App integration.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/observability"
)

// DefaultTTL is the session lifetime applied when creation does not
// specify one.
const DefaultTTL = 30 * time.Minute

// idBytes is the entropy drawn per generated session identifier.
const idBytes = 32

// createAttempts bounds ID regeneration when a generated identifier
// collides with a live session.
const createAttempts = 3

// CreateParams carries the caller-supplied parts of a new session.
type CreateParams struct {
	// AccessToken is the GitHub credential the session will carry.
	AccessToken string

	// Username is the GitHub login the session belongs to.
	Username string

	// TTL overrides the manager's default lifetime when positive.
	TTL time.Duration

	// IPAddress is optional provenance metadata, recorded verbatim.
	IPAddress string

	// UserAgent is optional provenance metadata, recorded verbatim.
	UserAgent string
}

// UpdateParams carries replacement credentials for an existing session.
type UpdateParams struct {
	// AccessToken replaces the session's credential unconditionally.
	AccessToken string

	// Username replaces the session's login unconditionally.
	Username string

	// TTL, when positive, renews the expiry to now+TTL. Zero leaves the
	// existing expiry in place.
	TTL time.Duration
}

// Manager owns the session lifecycle on top of a Store. Expired sessions
// are collected eagerly: every call that creates, refreshes or validates
// a session sweeps first, so no background timer is needed and the store
// never accumulates more than one call's worth of garbage.
type Manager struct {
	log   logrus.FieldLogger
	store Store
	ttl   time.Duration
}

// NewManager creates a session lifecycle manager on top of store. A
// non-positive defaultTTL falls back to DefaultTTL.
func NewManager(log logrus.FieldLogger, store Store, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &Manager{
		log:   log.WithField("component", "session_manager"),
		store: store,
		ttl:   defaultTTL,
	}
}

// GenerateID returns a fresh session identifier: 32 bytes from
// crypto/rand, base64url without padding.
func (m *Manager) GenerateID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIDGeneration, err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create establishes a new session under a generated identifier and
// returns the stored record. The write is conditional so even a
// generated-ID collision cannot overwrite a live session; collisions are
// retried with fresh identifiers.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*Record, error) {
	m.sweep(ctx)

	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := m.GenerateID()
		if err != nil {
			return nil, err
		}

		record := m.newRecord(id, params)

		ok, err := m.store.PutIfAbsent(ctx, record)
		if err != nil {
			return nil, err
		}

		if ok {
			m.log.WithFields(logrus.Fields{
				"username":   params.Username,
				"expires_at": record.ExpiresAt,
			}).Debug("Session created")
			observability.SessionsCreatedTotal.Inc()

			return record, nil
		}
	}

	return nil, fmt.Errorf("%w: %d generated ids collided with live sessions", ErrIDGeneration, createAttempts)
}

// CreateWithID establishes a session under a caller-supplied identifier,
// the path OAuth callbacks use to adopt a pre-issued state value. The
// liveness check and the write are a single conditional put: a live
// session under id leaves the store untouched and returns false.
func (m *Manager) CreateWithID(ctx context.Context, id string, params CreateParams) (bool, error) {
	m.sweep(ctx)

	ok, err := m.store.PutIfAbsent(ctx, m.newRecord(id, params))
	if err != nil {
		return false, err
	}

	if !ok {
		m.log.WithField("session_id", shortID(id)).Debug("Session id already in use")

		return false, nil
	}

	m.log.WithFields(logrus.Fields{
		"session_id": shortID(id),
		"username":   params.Username,
	}).Debug("Session created with supplied id")
	observability.SessionsCreatedTotal.Inc()

	return true, nil
}

// Validate returns the live session for id. Absent and expired sessions
// read as ErrSessionNotFound; substrate faults surface as
// ErrStoreUnavailable so callers can tell an invalid session from an
// unreachable store.
func (m *Manager) Validate(ctx context.Context, id string) (*Record, error) {
	m.sweep(ctx)

	return m.store.Get(ctx, id)
}

// Update replaces the credentials of an existing live session. It is not
// an upsert: a missing or expired session returns false with nothing
// written. Token and username are replaced unconditionally; the expiry
// moves to now+TTL only when params.TTL is positive; CreatedAt and the
// provenance metadata survive the update.
func (m *Manager) Update(ctx context.Context, id string, params UpdateParams) (bool, error) {
	m.sweep(ctx)

	current, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	updated := *current
	updated.AccessToken = params.AccessToken
	updated.Username = params.Username

	if params.TTL > 0 {
		updated.ExpiresAt = time.Now().Add(params.TTL)
	}

	if err := m.store.Put(ctx, &updated); err != nil {
		return false, err
	}

	m.log.WithFields(logrus.Fields{
		"session_id": shortID(id),
		"username":   params.Username,
	}).Debug("Session updated")

	return true, nil
}

// Delete removes the session for id immediately, reporting whether a live
// session existed. Deleting an unknown id is not an error.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := m.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	if removed {
		m.log.WithField("session_id", shortID(id)).Debug("Session deleted")
		observability.SessionsDeletedTotal.Inc()
	}

	return removed, nil
}

// DeleteForUser removes every live session belonging to username and
// reports how many were removed. Webhook handlers call this when an
// installation goes away.
func (m *Manager) DeleteForUser(ctx context.Context, username string) (int, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0

	for _, record := range records {
		if record.Username != username || now.After(record.ExpiresAt) {
			continue
		}

		ok, err := m.store.Delete(ctx, record.ID)
		if err != nil {
			return removed, err
		}

		if ok {
			removed++
			observability.SessionsDeletedTotal.Inc()
		}
	}

	if removed > 0 {
		m.log.WithFields(logrus.Fields{
			"username": username,
			"removed":  removed,
		}).Info("Removed sessions for user")
	}

	return removed, nil
}

// Sweep removes every expired session and reports how many were removed.
// Sweeping is idempotent and safe to run concurrently: deleting an
// already-deleted session is a no-op.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	start := time.Now()

	records, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, record := range records {
		if !start.After(record.ExpiresAt) {
			continue
		}

		if _, err := m.store.Delete(ctx, record.ID); err != nil {
			return removed, err
		}

		removed++
	}

	observability.SweepDuration.Observe(time.Since(start).Seconds())

	if removed > 0 {
		m.log.WithField("removed", removed).Debug("Swept expired sessions")
		observability.SessionsExpiredTotal.Add(float64(removed))
	}

	return removed, nil
}

// Count reports the number of live sessions after a sweep. Diagnostic
// endpoints use it; nothing in the lifecycle depends on it.
func (m *Manager) Count(ctx context.Context) (int, error) {
	if _, err := m.Sweep(ctx); err != nil {
		return 0, err
	}

	records, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0

	for _, record := range records {
		if !now.After(record.ExpiresAt) {
			count++
		}
	}

	observability.SessionsActive.Set(float64(count))

	return count, nil
}

// Ping reports whether the backing store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// newRecord builds the record for a create call, applying the default TTL
// and attaching provenance metadata.
func (m *Manager) newRecord(id string, params CreateParams) *Record {
	ttl := params.TTL
	if ttl <= 0 {
		ttl = m.ttl
	}

	record := NewRecord(id, params.AccessToken, params.Username, ttl)
	record.IPAddress = params.IPAddress
	record.UserAgent = params.UserAgent

	return record
}

// sweep fronts every mutating or validating operation. Failures are
// logged, not propagated: a sweep that cannot run must not take the
// primary operation down with it.
func (m *Manager) sweep(ctx context.Context) {
	if _, err := m.Sweep(ctx); err != nil {
		m.log.WithError(err).Warn("Expiry sweep failed")
	}
}

// shortID returns a log-safe prefix of a session identifier.
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}

	return id[:n]
}

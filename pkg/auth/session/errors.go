// Package session provides session storage and lifecycle management for
// the GitHub App integration.
package session

import "errors"

// Error sentinels for session operations.
var (
	// ErrSessionNotFound indicates no live session exists for the given
	// identifier. Absent, expired and unparseable records all surface as
	// not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStoreUnavailable indicates the storage substrate could not be
	// reached or rejected an operation. It is always distinct from
	// ErrSessionNotFound so callers can tell an invalid session from an
	// unreachable store.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrIDGeneration indicates the random source failed while generating
	// a session identifier.
	ErrIDGeneration = errors.New("session id generation failed")
)

// Package session provides session storage and lifecycle management for
// the GitHub App integration.
package session

import "time"

// Record represents an established session binding a GitHub credential to
// the user it was issued for.
type Record struct {
	// ID is the unique identifier for the session.
	ID string `json:"id"`

	// AccessToken is the GitHub credential the session carries, either a
	// user OAuth token or an installation token.
	AccessToken string `json:"access_token"`

	// Username is the GitHub login the session belongs to.
	Username string `json:"username"`

	// CreatedAt is when the session was established. Updates preserve it.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is the absolute expiry. The bound is exclusive: a record
	// is live at ExpiresAt and expired the first instant after it.
	ExpiresAt time.Time `json:"expires_at"`

	// IPAddress is where the session was established from. Provenance
	// only, never used for authorization.
	IPAddress string `json:"ip_address,omitempty"`

	// UserAgent is the client that established the session. Provenance
	// only.
	UserAgent string `json:"user_agent,omitempty"`
}

// IsExpired checks if the record is past its expiry.
func (r *Record) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// NewRecord creates a record for the given credential expiring ttl from now.
func NewRecord(id string, accessToken string, username string, ttl time.Duration) *Record {
	now := time.Now()

	return &Record{
		ID:          id,
		AccessToken: accessToken,
		Username:    username,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Package credential selects which GitHub credential an operation runs
// with. Resolution is a pure decision over credential presence; callers
// acquire and use the tokens themselves.
package credential

import "errors"

// Error sentinels for credential resolution.
var (
	// ErrNoCredential indicates neither a user token nor an installation
	// token is available.
	ErrNoCredential = errors.New("no credential available")

	// ErrUserTokenRequired indicates the operation must run with the
	// user's own token and may not fall back to an installation token.
	ErrUserTokenRequired = errors.New("user token required")
)

// Decision names the credential an operation should use.
type Decision int

const (
	// NoCredential means nothing usable is available.
	NoCredential Decision = iota

	// UseUserToken means the caller's OAuth token is used.
	UseUserToken

	// UseInstallationToken means the App installation token is used.
	UseInstallationToken
)

// String returns the decision as a label suitable for logs and responses.
func (d Decision) String() string {
	switch d {
	case UseUserToken:
		return "user_token"
	case UseInstallationToken:
		return "installation_token"
	default:
		return "no_credential"
	}
}

// Operation classifies API calls by the credential policy they fall under.
type Operation int

const (
	// OpCreateUserRepository creates a repository under the caller's
	// personal account. Installation tokens never act as a person, so this
	// operation runs with the user's token or not at all.
	OpCreateUserRepository Operation = iota

	// OpCreateOrgRepository creates a repository under an organization the
	// App is installed in. Either credential kind works.
	OpCreateOrgRepository

	// OpReadRepository reads repository data. Either credential kind works.
	OpReadRepository
)

// String returns the operation as a label suitable for logs and responses.
func (o Operation) String() string {
	switch o {
	case OpCreateUserRepository:
		return "create_user_repository"
	case OpCreateOrgRepository:
		return "create_org_repository"
	case OpReadRepository:
		return "read_repository"
	default:
		return "unknown"
	}
}

// RequiresUserToken reports whether the operation is forbidden to degrade
// to an installation token.
func (o Operation) RequiresUserToken() bool {
	return o == OpCreateUserRepository
}

// Resolve picks the credential from what is present: the user token when
// available, the installation token otherwise, NoCredential when neither
// exists. User tokens win ties because they act with the caller's own
// identity and permissions.
func Resolve(hasUserToken, hasInstallationToken bool) Decision {
	switch {
	case hasUserToken:
		return UseUserToken
	case hasInstallationToken:
		return UseInstallationToken
	default:
		return NoCredential
	}
}

// ResolveFor picks the credential for op and enforces its policy: it
// returns ErrUserTokenRequired when op must not degrade to an installation
// token and only one of those is available, and ErrNoCredential when
// nothing is available at all.
func ResolveFor(op Operation, hasUserToken, hasInstallationToken bool) (Decision, error) {
	decision := Resolve(hasUserToken, hasInstallationToken)

	switch decision {
	case NoCredential:
		return NoCredential, ErrNoCredential
	case UseInstallationToken:
		if op.RequiresUserToken() {
			return NoCredential, ErrUserTokenRequired
		}
	case UseUserToken:
	}

	return decision, nil
}

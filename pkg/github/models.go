// Package github provides the GitHub REST, OAuth and App authentication
// clients for the project manager.
package github

import "time"

// User represents a GitHub user profile.
type User struct {
	// ID is the GitHub user ID.
	ID int64 `json:"id"`

	// Login is the GitHub username.
	Login string `json:"login"`

	// Name is the user's display name.
	Name string `json:"name,omitempty"`

	// Email is the user's email address.
	Email string `json:"email,omitempty"`

	// AvatarURL is the URL to the user's avatar.
	AvatarURL string `json:"avatar_url,omitempty"`
}

// TokenResponse represents GitHub's OAuth token response.
type TokenResponse struct {
	// AccessToken is the GitHub access token.
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (usually "bearer").
	TokenType string `json:"token_type"`

	// Scope contains the granted scopes.
	Scope string `json:"scope"`

	// Error is set if the request failed.
	Error string `json:"error,omitempty"`

	// ErrorDescription provides details about the error.
	ErrorDescription string `json:"error_description,omitempty"`
}

// CreateRepositoryRequest describes a repository to create.
type CreateRepositoryRequest struct {
	// Name is the repository name.
	Name string `json:"name"`

	// Description is the repository description.
	Description string `json:"description,omitempty"`

	// Private makes the repository private.
	Private bool `json:"private"`

	// AutoInit seeds the repository with an initial commit so it can be
	// cloned immediately.
	AutoInit bool `json:"auto_init"`

	// Org, when set, creates the repository under that organization
	// instead of the authenticated user. Not part of the wire payload.
	Org string `json:"-"`
}

// RepositoryOwner is the account a repository belongs to.
type RepositoryOwner struct {
	// Login is the owning account's username.
	Login string `json:"login"`
}

// Repository represents a GitHub repository.
type Repository struct {
	// ID is the repository ID.
	ID int64 `json:"id"`

	// Name is the repository name without the owner.
	Name string `json:"name"`

	// FullName is the owner-qualified name, owner/name.
	FullName string `json:"full_name"`

	// Private reports whether the repository is private.
	Private bool `json:"private"`

	// HTMLURL is the repository's web URL.
	HTMLURL string `json:"html_url"`

	// DefaultBranch is the repository's default branch name.
	DefaultBranch string `json:"default_branch,omitempty"`

	// Owner is the owning account.
	Owner RepositoryOwner `json:"owner"`
}

// InstallationAccount is the account a GitHub App is installed on.
type InstallationAccount struct {
	// Login is the account's username or organization slug.
	Login string `json:"login"`

	// Type is "User" or "Organization".
	Type string `json:"type"`
}

// Installation represents a GitHub App installation.
type Installation struct {
	// ID is the installation ID.
	ID int64 `json:"id"`

	// Account is the account the App is installed on.
	Account InstallationAccount `json:"account"`
}

// InstallationToken is a short-lived credential minted for an
// installation.
type InstallationToken struct {
	// Token is the bearer token value.
	Token string `json:"token"`

	// ExpiresAt is when GitHub stops accepting the token, roughly an hour
	// after minting.
	ExpiresAt time.Time `json:"expires_at"`
}

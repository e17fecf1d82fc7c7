// Package github provides the GitHub REST, OAuth and App authentication
// clients for the project manager.
package github

import "errors"

// Error sentinels for GitHub operations.
var (
	// ErrGitHubOAuth indicates a failure in the GitHub OAuth flow.
	ErrGitHubOAuth = errors.New("GitHub OAuth error")

	// ErrGitHubAPI indicates a failure calling the GitHub API.
	ErrGitHubAPI = errors.New("GitHub API error")

	// ErrTokenMint indicates an installation token could not be minted.
	ErrTokenMint = errors.New("installation token mint failed")

	// ErrAppCredentials indicates the App credentials are missing or
	// unusable.
	ErrAppCredentials = errors.New("invalid App credentials")
)

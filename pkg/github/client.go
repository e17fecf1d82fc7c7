// Package github provides the GitHub REST, OAuth and App authentication
// clients for the project manager.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/config"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/observability"
)

const (
	// defaultScope is requested during OAuth authorization; repo access is
	// needed to create repositories on the user's behalf.
	defaultScope = "read:user repo"

	acceptHeader = "application/vnd.github+json"
	apiVersion   = "2022-11-28"

	// Default HTTP timeout.
	defaultTimeout = 30 * time.Second
)

// Client provides GitHub OAuth and REST operations.
type Client struct {
	log          logrus.FieldLogger
	clientID     string
	clientSecret string
	appSlug      string
	apiBaseURL   string
	oauthBaseURL string
	webBaseURL   string
	httpClient   *http.Client
}

// NewClient creates a new GitHub client. Empty base URLs fall back to
// github.com.
func NewClient(log logrus.FieldLogger, cfg config.GitHubConfig) *Client {
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}

	oauthBase := cfg.OAuthBaseURL
	if oauthBase == "" {
		oauthBase = "https://github.com"
	}

	webBase := cfg.WebBaseURL
	if webBase == "" {
		webBase = "https://github.com"
	}

	return &Client{
		log:          log.WithField("component", "github_client"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		appSlug:      cfg.AppSlug,
		apiBaseURL:   strings.TrimRight(apiBase, "/"),
		oauthBaseURL: strings.TrimRight(oauthBase, "/"),
		webBaseURL:   strings.TrimRight(webBase, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// AuthorizeURL generates the GitHub OAuth authorization URL.
func (c *Client) AuthorizeURL(redirectURI, state string) string {
	params := url.Values{
		"client_id":    {c.clientID},
		"redirect_uri": {redirectURI},
		"scope":        {defaultScope},
		"state":        {state},
	}

	return fmt.Sprintf("%s/login/oauth/authorize?%s", c.oauthBaseURL, params.Encode())
}

// InstallURL generates the App installation page URL. GitHub carries the
// state through installation and hands it back on the callback, which is
// how a pre-issued session identifier survives the round trip.
func (c *Client) InstallURL(state string) string {
	params := url.Values{"state": {state}}

	return fmt.Sprintf("%s/apps/%s/installations/new?%s", c.webBaseURL, c.appSlug, params.Encode())
}

// ExchangeCode exchanges an authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	start := time.Now()

	data := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}

	tokenURL := fmt.Sprintf("%s/login/oauth/access_token", c.oauthBaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrGitHubOAuth, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("exchange_code", start, false)

		return nil, fmt.Errorf("%w: exchanging code: %v", ErrGitHubOAuth, err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe("exchange_code", start, false)

		return nil, fmt.Errorf("%w: reading response: %v", ErrGitHubOAuth, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.observe("exchange_code", start, false)
		c.log.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"response":    string(body),
		}).Error("GitHub token exchange failed")

		return nil, fmt.Errorf("%w: status %d", ErrGitHubOAuth, resp.StatusCode)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		c.observe("exchange_code", start, false)

		return nil, fmt.Errorf("%w: parsing response: %v", ErrGitHubOAuth, err)
	}

	// GitHub reports OAuth failures inside a 200 response.
	if tokenResp.Error != "" {
		c.observe("exchange_code", start, false)
		c.log.WithFields(logrus.Fields{
			"error":       tokenResp.Error,
			"description": tokenResp.ErrorDescription,
		}).Error("GitHub OAuth error")

		return nil, fmt.Errorf("%w: %s: %s", ErrGitHubOAuth, tokenResp.Error, tokenResp.ErrorDescription)
	}

	c.observe("exchange_code", start, true)

	return &tokenResp, nil
}

// GetUser fetches the profile of the token's user.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	body, err := c.api(ctx, "get_user", http.MethodGet, "/user", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("%w: parsing user response: %v", ErrGitHubAPI, err)
	}

	c.log.WithFields(logrus.Fields{
		"github_id": user.ID,
		"login":     user.Login,
	}).Debug("Fetched GitHub user profile")

	return &user, nil
}

// CreateRepository creates a repository: under req.Org when set, under the
// token's user otherwise. Which token may be used for which target is the
// credential resolver's decision, not this client's.
func (c *Client) CreateRepository(ctx context.Context, token string, req *CreateRepositoryRequest) (*Repository, error) {
	path := "/user/repos"
	if req.Org != "" {
		path = fmt.Sprintf("/orgs/%s/repos", url.PathEscape(req.Org))
	}

	body, err := c.api(ctx, "create_repository", http.MethodPost, path, token, req)
	if err != nil {
		return nil, err
	}

	var repo Repository
	if err := json.Unmarshal(body, &repo); err != nil {
		return nil, fmt.Errorf("%w: parsing repository response: %v", ErrGitHubAPI, err)
	}

	c.log.WithFields(logrus.Fields{
		"full_name": repo.FullName,
		"private":   repo.Private,
	}).Info("Created repository")

	return &repo, nil
}

// GetInstallation looks up an App installation. The caller authenticates
// as the App itself via a signed App JWT.
func (c *Client) GetInstallation(ctx context.Context, appJWT string, installationID int64) (*Installation, error) {
	path := fmt.Sprintf("/app/installations/%d", installationID)

	body, err := c.api(ctx, "get_installation", http.MethodGet, path, appJWT, nil)
	if err != nil {
		return nil, err
	}

	var installation Installation
	if err := json.Unmarshal(body, &installation); err != nil {
		return nil, fmt.Errorf("%w: parsing installation response: %v", ErrGitHubAPI, err)
	}

	return &installation, nil
}

// mintInstallationToken trades a signed App JWT for a short-lived
// installation token.
func (c *Client) mintInstallationToken(ctx context.Context, appJWT string, installationID int64) (*InstallationToken, error) {
	path := fmt.Sprintf("/app/installations/%d/access_tokens", installationID)

	body, err := c.api(ctx, "mint_installation_token", http.MethodPost, path, appJWT, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMint, err)
	}

	var token InstallationToken
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: parsing token response: %v", ErrTokenMint, err)
	}

	return &token, nil
}

// api performs an authenticated JSON request against the REST API,
// returning the response body for any 2xx status.
func (c *Client) api(ctx context.Context, operation, method, path, token string, payload any) ([]byte, error) {
	start := time.Now()

	var body io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: encoding request: %v", ErrGitHubAPI, operation, err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: creating request: %v", ErrGitHubAPI, operation, err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, start, false)

		return nil, fmt.Errorf("%w: %s: %v", ErrGitHubAPI, operation, err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(operation, start, false)

		return nil, fmt.Errorf("%w: %s: reading response: %v", ErrGitHubAPI, operation, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.observe(operation, start, false)
		c.log.WithFields(logrus.Fields{
			"operation":   operation,
			"status_code": resp.StatusCode,
			"response":    string(respBody),
		}).Error("GitHub API request failed")

		return nil, fmt.Errorf("%w: %s: status %d", ErrGitHubAPI, operation, resp.StatusCode)
	}

	c.observe(operation, start, true)

	return respBody, nil
}

// observe records the metrics for one API call.
func (c *Client) observe(operation string, start time.Time, success bool) {
	status := "success"
	if !success {
		status = "error"
	}

	observability.GitHubRequestsTotal.WithLabelValues(operation, status).Inc()
	observability.GitHubRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

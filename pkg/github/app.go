// Package github provides the GitHub REST, OAuth and App authentication
// clients for the project manager.
package github

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/config"
)

const (
	// appJWTTTL keeps the App JWT comfortably under GitHub's ten minute
	// cap.
	appJWTTTL = 9 * time.Minute

	// appJWTBackdate shifts iat into the past to absorb clock skew between
	// this host and GitHub.
	appJWTBackdate = 60 * time.Second

	// tokenExpirySlack forces a re-mint this long before a cached
	// installation token would expire.
	tokenExpirySlack = 2 * time.Minute
)

// AppAuth mints App-level credentials: the signed App JWT and short-lived
// installation tokens. Minted installation tokens are cached per
// installation until shortly before expiry.
type AppAuth struct {
	log    logrus.FieldLogger
	appID  int64
	key    *rsa.PrivateKey
	client *Client

	mu     sync.Mutex
	tokens map[int64]*InstallationToken // installation ID -> cached token
}

// NewAppAuth creates the App authenticator, parsing the configured PEM
// private key. The client carries out the REST calls.
func NewAppAuth(log logrus.FieldLogger, cfg config.GitHubConfig, client *Client) (*AppAuth, error) {
	if cfg.AppID == 0 || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("%w: app_id and private_key are required", ErrAppCredentials)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrAppCredentials, err)
	}

	return &AppAuth{
		log:    log.WithField("component", "app_auth"),
		appID:  cfg.AppID,
		key:    key,
		client: client,
		tokens: make(map[int64]*InstallationToken),
	}, nil
}

// AppID returns the configured App identifier.
func (a *AppAuth) AppID() int64 {
	return a.appID
}

// AppJWT returns a short-lived RS256 JWT identifying the App itself,
// issued as of now. GitHub requires iss to be the App ID and rejects
// expiries more than ten minutes out.
func (a *AppAuth) AppJWT(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTTTL)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("%w: signing App JWT: %v", ErrAppCredentials, err)
	}

	return signed, nil
}

// InstallationToken returns a bearer token for the installation, minting
// a fresh one when the cache is empty or the cached token is near expiry.
func (a *AppAuth) InstallationToken(ctx context.Context, installationID int64) (*InstallationToken, error) {
	a.mu.Lock()
	cached, ok := a.tokens[installationID]
	a.mu.Unlock()

	if ok && time.Until(cached.ExpiresAt) > tokenExpirySlack {
		return cached, nil
	}

	appJWT, err := a.AppJWT(time.Now())
	if err != nil {
		return nil, err
	}

	token, err := a.client.mintInstallationToken(ctx, appJWT, installationID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.tokens[installationID] = token
	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"installation_id": installationID,
		"expires_at":      token.ExpiresAt,
	}).Debug("Minted installation token")

	return token, nil
}

// GetInstallation looks up an installation, signing a fresh App JWT for
// the call.
func (a *AppAuth) GetInstallation(ctx context.Context, installationID int64) (*Installation, error) {
	appJWT, err := a.AppJWT(time.Now())
	if err != nil {
		return nil, err
	}

	return a.client.GetInstallation(ctx, appJWT, installationID)
}

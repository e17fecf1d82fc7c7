package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/internal/version"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/auth/credential"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/auth/session"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/github"
)

// sessionHeader carries the session identifier on API calls.
const sessionHeader = "X-Session-ID"

// debugResponse is the GET /api/debug payload. Configuration is reported
// as booleans only; no secret material leaves the process.
type debugResponse struct {
	Service          string  `json:"service"`
	Version          string  `json:"version"`
	GitCommit        string  `json:"git_commit"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	SessionBackend   string  `json:"session_backend"`
	SessionCount     int     `json:"session_count"`
	StoreHealthy     bool    `json:"store_healthy"`
	AppConfigured    bool    `json:"app_configured"`
	OAuthConfigured  bool    `json:"oauth_configured"`
	RateLimitEnabled bool    `json:"rate_limit_enabled"`
}

// sessionResponse is the GET /api/sessions/{id} payload. The stored
// token never leaves the service; only its presence is reported.
type sessionResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	HasToken  bool      `json:"has_token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// createRepositoryRequest is the POST /api/repositories body.
type createRepositoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
	Org         string `json:"org,omitempty"`
}

// createRepositoryResponse reports the created repository and which
// credential class was used.
type createRepositoryResponse struct {
	Repository *github.Repository `json:"repository"`
	Credential string             `json:"credential"`
}

// handleHealth handles GET /health.
func (s *service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady handles GET /ready. Readiness requires a reachable session
// store; an unreachable store is an operational fault, not a missing
// session.
func (s *service) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("Readiness check failed")
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Session store is unreachable")

		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleDebug handles GET /api/debug.
func (s *service) handleDebug(w http.ResponseWriter, r *http.Request) {
	count, err := s.sessions.Count(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Session count unavailable for debug endpoint")
	}

	s.writeJSON(w, http.StatusOK, debugResponse{
		Service:          "mcp-project-manager",
		Version:          version.Version,
		GitCommit:        version.GitCommit,
		UptimeSeconds:    time.Since(s.startedAt).Seconds(),
		SessionBackend:   s.cfg.Sessions.Backend,
		SessionCount:     count,
		StoreHealthy:     err == nil,
		AppConfigured:    s.app != nil,
		OAuthConfigured:  s.cfg.GitHub.ClientID != "" && s.cfg.GitHub.ClientSecret != "",
		RateLimitEnabled: s.limiter != nil,
	})
}

// handleInstall handles GET /api/install. A session identifier is
// pre-issued and threaded through the installation flow as the OAuth
// state; the callback claims it with CreateWithID, which is what makes
// a replayed callback detectable.
func (s *service) handleInstall(w http.ResponseWriter, r *http.Request) {
	state, err := s.sessions.GenerateID()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate install state")
		s.writeError(w, http.StatusInternalServerError, "server_error", "Failed to generate state")

		return
	}

	installURL := s.github.InstallURL(state)

	if r.URL.Query().Get("format") == "json" {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"url":   installURL,
			"state": state,
		})

		return
	}

	http.Redirect(w, r, installURL, http.StatusFound)
}

// handleOAuthCallback handles GET /api/oauth/callback, the redirect
// target for both App installation and plain OAuth sign-in.
func (s *service) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	log := s.log.WithField("handler", "oauth_callback")

	if errCode := q.Get("error"); errCode != "" {
		log.WithFields(logrus.Fields{
			"oauth_error": errCode,
			"description": q.Get("error_description"),
		}).Warn("OAuth callback carried an error")

		s.renderPage(w, http.StatusBadRequest, errorPage("Authorization failed",
			"GitHub reported \""+errCode+"\". You can close this window and try again."))

		return
	}

	code := q.Get("code")
	if code == "" {
		s.renderPage(w, http.StatusBadRequest, errorPage("Missing authorization code",
			"GitHub did not include an authorization code. Start again from the install page."))

		return
	}

	token, err := s.github.ExchangeCode(ctx, code, s.callbackURL())
	if err != nil {
		log.WithError(err).Error("OAuth code exchange failed")
		s.renderPage(w, http.StatusBadGateway, errorPage("Authorization failed",
			"The authorization code could not be exchanged. It may have expired; start again from the install page."))

		return
	}

	user, err := s.github.GetUser(ctx, token.AccessToken)
	if err != nil {
		log.WithError(err).Error("Failed to resolve user after code exchange")
		s.renderPage(w, http.StatusBadGateway, errorPage("Authorization failed",
			"GitHub did not accept the new token. Start again from the install page."))

		return
	}

	log = log.WithField("username", user.Login)

	// Installation context is display-only; losing it degrades the page,
	// not the session.
	installationID, appDegraded := s.resolveInstallation(ctx, log, q.Get("installation_id"))

	params := session.CreateParams{
		AccessToken: token.AccessToken,
		Username:    user.Login,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
	}

	state := q.Get("state")

	if state == "" {
		// No correlation id survived the redirect; issue a fresh session.
		if _, err := s.sessions.Create(ctx, params); err != nil {
			log.WithError(err).Error("Failed to create session after OAuth")
			s.renderPage(w, http.StatusServiceUnavailable, degradedPage(user.Login,
				"You are authenticated with GitHub, but the session could not be stored. Try again shortly."))

			return
		}
	} else {
		created, err := s.sessions.CreateWithID(ctx, state, params)
		if err != nil {
			log.WithError(err).Error("Failed to create session after OAuth")
			s.renderPage(w, http.StatusServiceUnavailable, degradedPage(user.Login,
				"You are authenticated with GitHub, but the session could not be stored. Try again shortly."))

			return
		}

		if !created {
			// Replayed callback; the original session stays untouched.
			log.Info("Callback replay detected, session already established")
			s.renderPage(w, http.StatusOK, &pageData{
				Title:    "Session already established",
				Heading:  "You are already signed in",
				Message:  "This sign-in was already completed. The existing session remains valid.",
				Username: user.Login,
			})

			return
		}
	}

	log.WithField("installation_id", installationID).Info("OAuth callback completed")

	page := &pageData{
		Title:          "GitHub App installed",
		Heading:        "All set!",
		Message:        "Your session is ready. You can close this window.",
		Username:       user.Login,
		InstallationID: installationID,
		HasUserToken:   true,
	}
	if appDegraded {
		page.Notice = "Installation details could not be verified right now; repository access through the App may be delayed."
	}

	s.renderPage(w, http.StatusOK, page)
}

// resolveInstallation parses and verifies the installation_id callback
// parameter. It reports (0, true) when an id was supplied but could not
// be verified.
func (s *service) resolveInstallation(ctx context.Context, log logrus.FieldLogger, raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.WithField("installation_id", raw).Warn("Ignoring unparseable installation_id")

		return 0, true
	}

	if s.app == nil {
		log.Warn("App credentials not configured, skipping installation lookup")

		return id, true
	}

	installation, err := s.app.GetInstallation(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Installation lookup failed")

		return id, true
	}

	log.WithField("installation_account", installation.Account.Login).Debug("Installation verified")

	return id, false
}

// handleCreateRepository handles POST /api/repositories.
func (s *service) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON")

		return
	}

	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "Repository name is required")

		return
	}

	userToken, ok := s.userToken(w, r)
	if !ok {
		return
	}

	installationToken := s.installationToken(ctx, r.URL.Query().Get("installation_id"))

	operation := credential.OpCreateUserRepository
	if req.Org != "" {
		operation = credential.OpCreateOrgRepository
	}

	decision, err := credential.ResolveFor(operation, userToken != "", installationToken != "")
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrUserTokenRequired):
			s.writeError(w, http.StatusForbidden, "user_token_required",
				"Creating a personal repository requires a user session; an installation token cannot act as a user. Sign in and retry with X-Session-ID.")
		case errors.Is(err, credential.ErrNoCredential):
			s.writeError(w, http.StatusUnauthorized, "no_credential",
				"Provide a session via the X-Session-ID header or an installation_id query parameter.")
		default:
			s.writeError(w, http.StatusInternalServerError, "server_error", "Credential resolution failed")
		}

		return
	}

	token := userToken
	if decision == credential.UseInstallationToken {
		token = installationToken
	}

	repo, err := s.github.CreateRepository(ctx, token, &github.CreateRepositoryRequest{
		Name:        req.Name,
		Description: req.Description,
		Private:     req.Private,
		AutoInit:    req.AutoInit,
		Org:         req.Org,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"repository": req.Name,
			"credential": decision.String(),
		}).Error("Repository creation failed")
		s.writeError(w, http.StatusBadGateway, "github_error", "GitHub rejected the repository creation request")

		return
	}

	s.log.WithFields(logrus.Fields{
		"repository": repo.FullName,
		"credential": decision.String(),
	}).Info("Repository created")

	s.writeJSON(w, http.StatusCreated, createRepositoryResponse{
		Repository: repo,
		Credential: decision.String(),
	})
}

// userToken validates the optional session header. A missing header is
// not an error; a presented but dead session and an unreachable store
// are, and both terminate the request here.
func (s *service) userToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		return "", true
	}

	record, err := s.sessions.Validate(r.Context(), id)

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.writeError(w, http.StatusUnauthorized, "invalid_session", "Session is invalid or expired")

		return "", false
	case errors.Is(err, session.ErrStoreUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Session store is unreachable")

		return "", false
	case err != nil:
		s.log.WithError(err).Error("Session validation failed")
		s.writeError(w, http.StatusInternalServerError, "server_error", "Session validation failed")

		return "", false
	}

	return record.AccessToken, true
}

// installationToken mints a token for the optional installation_id
// parameter. Failures degrade to "no installation credential"; the
// resolver decides whether that is fatal for the request.
func (s *service) installationToken(ctx context.Context, raw string) string {
	if raw == "" {
		return ""
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.log.WithField("installation_id", raw).Warn("Ignoring unparseable installation_id")

		return ""
	}

	if s.app == nil {
		s.log.Warn("App credentials not configured, cannot mint installation token")

		return ""
	}

	token, err := s.app.InstallationToken(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("installation_id", id).Warn("Installation token mint failed")

		return ""
	}

	return token.Token
}

// handleGetSession handles GET /api/sessions/{id}.
func (s *service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.sessions.Validate(r.Context(), id)

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		s.writeError(w, http.StatusNotFound, "session_not_found", "No live session exists for this identifier")

		return
	case errors.Is(err, session.ErrStoreUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Session store is unreachable")

		return
	case err != nil:
		s.log.WithError(err).Error("Session lookup failed")
		s.writeError(w, http.StatusInternalServerError, "server_error", "Session lookup failed")

		return
	}

	s.writeJSON(w, http.StatusOK, sessionResponse{
		ID:        record.ID,
		Username:  record.Username,
		HasToken:  record.AccessToken != "",
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	})
}

// handleDeleteSession handles DELETE /api/sessions/{id}.
func (s *service) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := s.sessions.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Session store is unreachable")

			return
		}

		s.log.WithError(err).Error("Session deletion failed")
		s.writeError(w, http.StatusInternalServerError, "server_error", "Session deletion failed")

		return
	}

	if !removed {
		s.writeError(w, http.StatusNotFound, "session_not_found", "No live session exists for this identifier")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response with the given status.
func (s *service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("Failed to write response")
	}
}

// writeError writes a JSON error response.
func (s *service) writeError(w http.ResponseWriter, status int, errCode, description string) {
	s.writeJSON(w, status, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}

// clientIP extracts the originating client address for session metadata.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")

		return strings.TrimSpace(parts[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

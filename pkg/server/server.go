// Package server provides the public HTTP surface of the project
// manager: install and OAuth callback flow, session endpoints,
// repository creation and the webhook receiver.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/internal/version"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/auth/session"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/config"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/github"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/webhook"
)

// shutdownTimeout bounds graceful shutdown on Stop.
const shutdownTimeout = 10 * time.Second

// Service is the main HTTP server service.
type Service interface {
	// Start runs the HTTP server until the context is cancelled or Stop
	// is called.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the server.
	Stop() error
}

// service implements the Service interface.
type service struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	sessions *session.Manager
	github   *github.Client
	app      *github.AppAuth
	webhook  *webhook.Processor
	limiter  *RateLimiter

	httpServer *http.Server
	startedAt  time.Time
	mu         sync.Mutex
	done       chan struct{}
	running    bool
}

// NewService creates the HTTP server service. appAuth may be nil when
// App credentials are not configured; installation lookups and token
// minting are then reported as unavailable rather than failing startup.
func NewService(
	log logrus.FieldLogger,
	cfg *config.Config,
	sessions *session.Manager,
	githubClient *github.Client,
	appAuth *github.AppAuth,
	processor *webhook.Processor,
) Service {
	s := &service{
		log:      log.WithField("component", "server"),
		cfg:      cfg,
		sessions: sessions,
		github:   githubClient,
		app:      appAuth,
		webhook:  processor,
		done:     make(chan struct{}),
	}

	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(log, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	}

	return s
}

// Start runs the HTTP server until the context is cancelled or Stop is
// called.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()

		return errors.New("server already running")
	}

	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.log.WithFields(logrus.Fields{
		"address":            addr,
		"version":            version.Version,
		"session_backend":    s.cfg.Sessions.Backend,
		"app_configured":     s.app != nil,
		"rate_limit_enabled": s.limiter != nil,
	}).Info("Starting project manager server")

	if s.limiter != nil {
		s.limiter.StartCleanup(time.Hour, s.done)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.httpServer.Shutdown(shutdownCtx)
	case <-s.done:
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}

// Stop gracefully shuts down the server.
func (s *service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.log.Info("Stopping project manager server")

	close(s.done)
	s.running = false

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("Failed to shutdown HTTP server")
		}
	}

	s.log.Info("Project manager server stopped")

	return nil
}

// routes builds the chi router for the public surface.
func (s *service) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.metricsMiddleware)

	// Health endpoints (always public, never rate limited).
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(api chi.Router) {
		// GitHub retries failed deliveries aggressively; the webhook
		// path must not share the per-client rate budget.
		api.Post("/webhook", s.webhook.Handle)

		api.Group(func(limited chi.Router) {
			if s.limiter != nil {
				limited.Use(s.limiter.Handler)
			}

			limited.Get("/debug", s.handleDebug)
			limited.Get("/install", s.handleInstall)
			limited.Get("/oauth/callback", s.handleOAuthCallback)
			limited.Post("/repositories", s.handleCreateRepository)
			limited.Get("/sessions/{id}", s.handleGetSession)
			limited.Delete("/sessions/{id}", s.handleDeleteSession)
		})
	})

	return r
}

// callbackURL is the redirect URI registered with the GitHub App.
func (s *service) callbackURL() string {
	return fmt.Sprintf("%s/api/oauth/callback", s.cfg.Server.BaseURL)
}

// Compile-time interface compliance check.
var _ Service = (*service)(nil)

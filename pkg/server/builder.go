package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/auth/session"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/config"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/github"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/webhook"
)

// Builder constructs and wires all dependencies for the server.
type Builder struct {
	log logrus.FieldLogger
	cfg *config.Config
}

// NewBuilder creates a new server builder.
func NewBuilder(log logrus.FieldLogger, cfg *config.Config) *Builder {
	return &Builder{
		log: log.WithField("component", "builder"),
		cfg: cfg,
	}
}

// Build constructs all dependencies and returns the server service.
func (b *Builder) Build(ctx context.Context) (Service, error) {
	b.log.Info("Building project manager dependencies")

	store, err := session.New(b.log, b.cfg.Sessions)
	if err != nil {
		return nil, fmt.Errorf("building session store: %w", err)
	}

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging session store: %w", err)
	}

	b.log.WithField("backend", b.cfg.Sessions.Backend).Info("Session store ready")

	manager := session.NewManager(b.log, store, b.cfg.Sessions.TTL)

	githubClient := github.NewClient(b.log, b.cfg.GitHub)

	appAuth, err := b.buildAppAuth(githubClient)
	if err != nil {
		return nil, fmt.Errorf("building App auth: %w", err)
	}

	processor := webhook.NewProcessor(b.log, b.cfg.GitHub.WebhookSecret, manager, appAuth)

	return NewService(b.log, b.cfg, manager, githubClient, appAuth, processor), nil
}

// buildAppAuth creates the App authenticator when credentials are
// configured. A service without App credentials still serves the OAuth
// flow and user-token repository creation.
func (b *Builder) buildAppAuth(client *github.Client) (*github.AppAuth, error) {
	if b.cfg.GitHub.AppID == 0 && b.cfg.GitHub.PrivateKey == "" {
		b.log.Warn("GitHub App credentials not configured, installation features disabled")

		return nil, nil
	}

	return github.NewAppAuth(b.log, b.cfg.GitHub, client)
}

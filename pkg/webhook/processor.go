// Package webhook validates and dispatches GitHub App webhook deliveries.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gh "github.com/google/go-github/v68/github"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/auth/session"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/github"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/observability"
)

// Delivery outcomes recorded per event type.
const (
	statusProcessed = "processed"
	statusIgnored   = "ignored"
	statusDegraded  = "degraded"
	statusError     = "error"
)

// Processor verifies webhook signatures and reacts to App lifecycle
// events. Deliveries that pass signature validation are always
// acknowledged with 200; GitHub treats anything else as a failed
// delivery and queues redeliveries.
type Processor struct {
	log      logrus.FieldLogger
	secret   []byte
	sessions *session.Manager
	app      *github.AppAuth
}

// NewProcessor creates a webhook processor. app may be nil when App
// credentials are not configured; installation events are then
// acknowledged without establishing sessions.
func NewProcessor(log logrus.FieldLogger, secret string, sessions *session.Manager, app *github.AppAuth) *Processor {
	return &Processor{
		log:      log.WithField("component", "webhook"),
		secret:   []byte(secret),
		sessions: sessions,
		app:      app,
	}
}

// Handle is the HTTP entry point for POST /api/webhook.
func (p *Processor) Handle(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		deliveryID = uuid.New().String()
	}

	eventType := gh.WebHookType(r)

	log := p.log.WithFields(logrus.Fields{
		"delivery_id": deliveryID,
		"event":       eventType,
	})

	payload, err := gh.ValidatePayload(r, p.secret)
	if err != nil {
		log.WithError(err).Warn("Webhook signature validation failed")
		observability.WebhookEventsTotal.WithLabelValues(eventType, statusError).Inc()
		p.writeStatus(w, http.StatusUnauthorized, "invalid signature")

		return
	}

	event, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		log.WithError(err).Warn("Webhook payload parsing failed")
		observability.WebhookEventsTotal.WithLabelValues(eventType, statusError).Inc()
		p.writeStatus(w, http.StatusBadRequest, "malformed payload")

		return
	}

	status := p.dispatch(r.Context(), log, event)
	observability.WebhookEventsTotal.WithLabelValues(eventType, status).Inc()

	p.writeStatus(w, http.StatusOK, "accepted")
}

// dispatch routes a parsed event and reports the outcome label for
// metrics. Processing failures are logged but never surfaced to GitHub.
func (p *Processor) dispatch(ctx context.Context, log logrus.FieldLogger, event any) string {
	switch event := event.(type) {
	case *gh.PingEvent:
		log.WithField("zen", event.GetZen()).Info("Webhook ping received")

		return statusProcessed

	case *gh.InstallationEvent:
		return p.handleInstallation(ctx, log, event)

	case *gh.InstallationRepositoriesEvent:
		log.WithFields(logrus.Fields{
			"action":  event.GetAction(),
			"added":   len(event.RepositoriesAdded),
			"removed": len(event.RepositoriesRemoved),
		}).Info("Installation repository selection changed")

		return statusProcessed

	case *gh.PushEvent:
		log.WithFields(logrus.Fields{
			"repository": event.GetRepo().GetFullName(),
			"ref":        event.GetRef(),
		}).Info("Push received")

		return statusProcessed

	default:
		log.Debug("Ignoring unhandled event type")

		return statusIgnored
	}
}

// handleInstallation reacts to App install and uninstall events.
func (p *Processor) handleInstallation(ctx context.Context, log logrus.FieldLogger, event *gh.InstallationEvent) string {
	installation := event.GetInstallation()
	account := installation.GetAccount().GetLogin()

	log = log.WithFields(logrus.Fields{
		"action":          event.GetAction(),
		"installation_id": installation.GetID(),
		"account":         account,
	})

	switch event.GetAction() {
	case "created":
		return p.establishSession(ctx, log, installation.GetID(), account)

	case "deleted":
		removed, err := p.sessions.DeleteForUser(ctx, account)
		if err != nil {
			log.WithError(err).Error("Failed to revoke sessions for uninstalled account")

			return statusError
		}

		log.WithField("sessions_removed", removed).Info("Installation deleted")

		return statusProcessed

	default:
		log.Info("Ignoring installation action")

		return statusIgnored
	}
}

// establishSession mints an installation token and opens a session for
// the installing account. Minting failures degrade to an acknowledged
// delivery without a session; the account can still authenticate through
// the OAuth callback.
func (p *Processor) establishSession(ctx context.Context, log logrus.FieldLogger, installationID int64, account string) string {
	if p.app == nil {
		log.Warn("App credentials not configured, installation recorded without a session")

		return statusDegraded
	}

	token, err := p.app.InstallationToken(ctx, installationID)
	if err != nil {
		log.WithError(err).Warn("Installation token mint failed, installation recorded without a session")

		return statusDegraded
	}

	// The session dies with its token rather than holding a credential
	// GitHub no longer accepts.
	record, err := p.sessions.Create(ctx, session.CreateParams{
		AccessToken: token.Token,
		Username:    account,
		TTL:         time.Until(token.ExpiresAt),
	})
	if err != nil {
		log.WithError(err).Error("Failed to create session for installation")

		return statusError
	}

	log.WithField("session_expires_at", record.ExpiresAt).Info("Installation session established")

	return statusProcessed
}

// writeStatus writes the minimal JSON acknowledgement body.
func (p *Processor) writeStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{"status": message}); err != nil {
		p.log.WithError(err).Error("Failed to write webhook response")
	}
}

package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/auth/session"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/config"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/github"
	"github.com/ACNet-AI/mcp-project-manager-sub001/pkg/webhook"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func testKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// newGitHubStub serves the GitHub endpoints the handler tests touch.
func newGitHubStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(github.TokenResponse{AccessToken: "gho_user", TokenType: "bearer"})
	})

	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(github.User{ID: 7, Login: "alice"})
	})

	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer gho_user", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(github.Repository{FullName: "alice/my-mcp-server", Owner: github.RepositoryOwner{Login: "alice"}})
	})

	mux.HandleFunc("POST /orgs/acnet-ai/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer ghs_installation", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(github.Repository{FullName: "acnet-ai/my-mcp-server", Owner: github.RepositoryOwner{Login: "acnet-ai"}})
	})

	mux.HandleFunc("POST /app/installations/42/access_tokens", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(github.InstallationToken{Token: "ghs_installation", ExpiresAt: time.Now().Add(time.Hour)})
	})

	mux.HandleFunc("GET /app/installations/42", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(github.Installation{ID: 42, Account: github.InstallationAccount{Login: "acnet-ai", Type: "Organization"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

type testServer struct {
	svc     *service
	store   *session.MemoryStore
	manager *session.Manager
	url     string
	client  *http.Client
}

// newTestServer wires a service over a memory store against the given
// GitHub base URL and serves its router.
func newTestServer(t *testing.T, githubURL string, withApp bool) *testServer {
	t.Helper()

	store := session.NewMemoryStore(testLogger())
	manager := session.NewManager(testLogger(), store, 0)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, BaseURL: "http://localhost:8080"},
		GitHub: config.GitHubConfig{
			ClientID:      "Iv1.test",
			ClientSecret:  "oauth-secret",
			AppSlug:       "mcp-project-manager",
			WebhookSecret: "webhook-secret",
			APIBaseURL:    githubURL,
			OAuthBaseURL:  githubURL,
			WebBaseURL:    githubURL,
		},
		Sessions: config.SessionsConfig{Backend: config.SessionBackendMemory, TTL: 30 * time.Minute},
	}

	client := github.NewClient(testLogger(), cfg.GitHub)

	var app *github.AppAuth

	if withApp {
		cfg.GitHub.AppID = 12345
		cfg.GitHub.PrivateKey = testKeyPEM(t)

		var err error

		app, err = github.NewAppAuth(testLogger(), cfg.GitHub, client)
		require.NoError(t, err)
	}

	processor := webhook.NewProcessor(testLogger(), cfg.GitHub.WebhookSecret, manager, app)

	svc, ok := NewService(testLogger(), cfg, manager, client, app, processor).(*service)
	require.True(t, ok)

	svc.startedAt = time.Now()

	srv := httptest.NewServer(svc.routes())
	t.Cleanup(srv.Close)

	httpClient := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testServer{svc: svc, store: store, manager: manager, url: srv.URL, client: httpClient}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, header map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.url+path, body)
	require.NoError(t, err)

	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := ts.client.Do(req)
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeJSON[T any](t *testing.T, r io.Reader) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))

	return v
}

// seedSession creates a live session and returns its identifier.
func seedSession(t *testing.T, ts *testServer, username, token string) string {
	t.Helper()

	record, err := ts.manager.Create(context.Background(), session.CreateParams{
		AccessToken: token,
		Username:    username,
	})
	require.NoError(t, err)

	return record.ID
}

// newUnavailableService builds a service whose store substrate is gone.
func newUnavailableService(t *testing.T) *testServer {
	t.Helper()

	srv := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := session.NewRedisStore(testLogger(), client, "")
	manager := session.NewManager(testLogger(), store, 0)

	cfg := &config.Config{
		Server:   config.ServerConfig{BaseURL: "http://localhost:8080"},
		Sessions: config.SessionsConfig{Backend: config.SessionBackendRedis},
	}

	ghClient := github.NewClient(testLogger(), cfg.GitHub)
	processor := webhook.NewProcessor(testLogger(), "secret", manager, nil)

	svc, ok := NewService(testLogger(), cfg, manager, ghClient, nil, processor).(*service)
	require.True(t, ok)

	svc.startedAt = time.Now()

	httpSrv := httptest.NewServer(svc.routes())
	t.Cleanup(httpSrv.Close)

	srv.Close()

	return &testServer{svc: svc, url: httpSrv.URL, client: http.DefaultClient, manager: manager}
}

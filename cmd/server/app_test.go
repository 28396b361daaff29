package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/inkwell-api/internal/api"
	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/config"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "error", ShutdownTimeout: time.Second},
		Database: config.DatabaseConfig{
			Backend: "memory",
		},
		Auth: config.AuthConfig{
			JWTSecret:            "end-to-end-test-secret-that-is-long-enough",
			TokenLifetimeMinutes: 60,
			BCryptCost:           4,
			InitialCredits:       100,
		},
		Task: config.TaskConfig{
			WorkerCount:            2,
			QueueSize:              10,
			StuckTaskAge:           time.Minute,
			StuckTaskCheckInterval: time.Minute,
			ProducerTimeout:        30 * time.Second,
		},
		Generation: config.GenerationConfig{
			TextToImageCost:     20,
			ImageToImageCost:    20,
			MaxPromptLength:     500,
			AllowedAspectRatios: []string{"1:1", "3:4"},
			MaxUploadBytes:      1 << 20,
			EstimatedSeconds:    5,
			PresetDir:           t.TempDir(),
			StatusReadPolicy:    "shared",
		},
		Storage: config.StorageConfig{
			Backend:       "local",
			LocalDir:      t.TempDir(),
			PublicBaseURL: "/files",
		},
	}
}

// startTestServer runs the full application behind an httptest server.
func startTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)
	require.NoError(t, app.taskRunner.Start())

	srv := httptest.NewServer(app.setupRouter())
	t.Cleanup(func() {
		srv.Close()
		app.cleanup()
	})
	return srv
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func register(t *testing.T, srv *httptest.Server, email string) *client {
	t.Helper()
	c := &client{t: t, base: srv.URL}
	var auth api.AuthResponse
	status := c.do(http.MethodPost, "/api/auth/register", api.RegisterRequest{
		Email:    email,
		Password: "correct-horse-battery",
	}, &auth)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, auth.AccessToken)
	c.token = auth.AccessToken
	return c
}

func (c *client) credits() int64 {
	c.t.Helper()
	var account api.AccountResponse
	require.Equal(c.t, http.StatusOK, c.do(http.MethodGet, "/api/account", nil, &account))
	return account.Credits
}

func (c *client) submit(prompt string) (int, api.SubmitResponse, shared.ErrorResponse) {
	c.t.Helper()
	var raw json.RawMessage
	status := c.do(http.MethodPost, "/api/generations/text-to-image", api.TextToImageRequest{
		Prompt:      prompt,
		AspectRatio: "1:1",
	}, &raw)

	var accepted api.SubmitResponse
	var rejected shared.ErrorResponse
	if status == http.StatusAccepted {
		require.NoError(c.t, json.Unmarshal(raw, &accepted))
	} else {
		require.NoError(c.t, json.Unmarshal(raw, &rejected))
	}
	return status, accepted, rejected
}

func TestApplication_GenerationLifecycle(t *testing.T) {
	t.Parallel()
	srv := startTestServer(t, testConfig(t))
	c := register(t, srv, "painter@example.com")

	assert.EqualValues(t, 100, c.credits())

	status, accepted, _ := c.submit("a friendly dragon in a garden")
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "processing", accepted.Status)
	assert.EqualValues(t, 20, accepted.Cost)
	assert.Equal(t, 5, accepted.EstimatedTime)
	assert.EqualValues(t, 80, c.credits())

	var view service.TaskView
	require.Eventually(t, func() bool {
		view = service.TaskView{}
		code := c.do(http.MethodGet, "/api/generations/"+accepted.TaskID.String(), nil, &view)
		return code == http.StatusOK && view.Status == "completed"
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 100, view.Progress)
	require.NotNil(t, view.Result)
	require.NotEmpty(t, view.Result.Variants)
	assert.EqualValues(t, 80, c.credits(), "completed task is not refunded")

	resp, err := http.Get(srv.URL + view.Result.Variants[0].URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var list api.TaskListResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/generations?limit=5", nil, &list))
	assert.Equal(t, 1, list.Pagination.Total)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, accepted.TaskID, list.Tasks[0].ID)
}

func TestApplication_CancelRefunds(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Generation.StepDelay = 500 * time.Millisecond
	srv := startTestServer(t, cfg)
	c := register(t, srv, "quitter@example.com")

	status, accepted, _ := c.submit("a lighthouse at dusk")
	require.Equal(t, http.StatusAccepted, status)
	assert.EqualValues(t, 80, c.credits())

	var view service.TaskView
	require.Equal(t, http.StatusOK,
		c.do(http.MethodPost, "/api/generations/"+accepted.TaskID.String()+"/cancel", nil, &view))
	assert.Equal(t, "cancelled", string(view.Status))
	assert.EqualValues(t, 100, c.credits())

	var problem shared.ErrorResponse
	assert.Equal(t, http.StatusConflict,
		c.do(http.MethodPost, "/api/generations/"+accepted.TaskID.String()+"/cancel", nil, &problem))
	assert.Equal(t, api.CodeAlreadyTerminal, problem.Code)
	assert.EqualValues(t, 100, c.credits(), "second cancel does not refund again")
}

func TestApplication_InsufficientCredits(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Auth.InitialCredits = 30
	srv := startTestServer(t, cfg)
	c := register(t, srv, "thrifty@example.com")

	status, _, _ := c.submit("a sailboat")
	require.Equal(t, http.StatusAccepted, status)

	status, _, problem := c.submit("another sailboat")
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, api.CodeInsufficientCredits, problem.Code)
	assert.EqualValues(t, 10, c.credits())
}

func TestApplication_OwnerOnlyActions(t *testing.T) {
	t.Parallel()
	srv := startTestServer(t, testConfig(t))
	owner := register(t, srv, "owner@example.com")
	other := register(t, srv, "other@example.com")

	status, accepted, _ := owner.submit("a quiet forest")
	require.Equal(t, http.StatusAccepted, status)

	var problem shared.ErrorResponse
	assert.Equal(t, http.StatusForbidden,
		other.do(http.MethodPost, "/api/generations/"+accepted.TaskID.String()+"/cancel", nil, &problem))

	anonymous := &client{t: t, base: srv.URL}
	assert.Equal(t, http.StatusUnauthorized,
		anonymous.do(http.MethodPost, "/api/generations/text-to-image", api.TextToImageRequest{
			Prompt: "x", AspectRatio: "1:1",
		}, &problem))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := startTestServer(t, testConfig(t))

	var body map[string]string
	c := &client{t: t, base: srv.URL}
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFilesMountPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "/files"},
		{"/", "/files"},
		{"/files", "/files"},
		{"/media/objects/", "/media/objects"},
		{"http://localhost:8080/assets", "/assets"},
		{"https://cdn.example.com", "/files"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filesMountPath(tt.in), tt.in)
	}
}

func TestStatusCacheTTL(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	assert.Equal(t, 24*time.Hour, statusCacheTTL(cfg))

	cfg.Redis.StatusTTL = 10 * time.Minute
	assert.Equal(t, 10*time.Minute, statusCacheTTL(cfg))

	cfg.Storage.Backend = "minio"
	cfg.Storage.PresignExpiry = 10 * time.Minute
	assert.Equal(t, 5*time.Minute, statusCacheTTL(cfg))

	cfg.Storage.PresignExpiry = 0
	assert.Equal(t, 10*time.Minute, statusCacheTTL(cfg))
}

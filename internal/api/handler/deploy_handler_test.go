package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flavienbwk/repo-autodeployer/internal/api/handler"
	"github.com/flavienbwk/repo-autodeployer/internal/api/router"
	"github.com/flavienbwk/repo-autodeployer/internal/dispatch"
	"github.com/flavienbwk/repo-autodeployer/internal/job"
)

type blockedRunner struct {
	release chan struct{}
}

func (r *blockedRunner) Run(ctx context.Context, j *job.Job) (string, error) {
	if r.release != nil {
		<-r.release
	}
	return "http://1.2.3.4:8080", nil
}

type testEnv struct {
	engine     *gin.Engine
	store      *job.Store
	dispatcher *dispatch.Dispatcher
}

func newTestEnv(t *testing.T, runner dispatch.Runner) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := job.NewStore()
	d := dispatch.NewDispatcher(&dispatch.Config{
		Logger:      logger,
		Store:       store,
		Runner:      runner,
		Concurrency: 2,
		DataDir:     t.TempDir(),
	})

	engine := router.SetupRouter(&handler.Dependencies{
		Logger:     logger,
		Store:      store,
		Dispatcher: d,
	})
	return &testEnv{engine: engine, store: store, dispatcher: d}
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestDeploy_EnqueuesJob(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{release: make(chan struct{})})

	w := doJSON(t, env.engine, http.MethodPost, "/request",
		`{"description": "deploy my flask app", "repo_url": "https://github.com/x/y"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	require.NotEmpty(t, resp.JobID)

	snap, err := env.store.Get(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, snap.Status)
	assert.Equal(t, "https://github.com/x/y", snap.RepoURL)
}

func TestRequestDeploy_ValidatesBody(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{})

	tests := []struct {
		name string
		body string
	}{
		{"missing description", `{"repo_url": "https://github.com/x/y"}`},
		{"missing repo_url", `{"description": "deploy"}`},
		{"malformed json", `{"description": `},
		{"invalid url", `{"description": "deploy", "repo_url": "not a url"}`},
		{"non-http scheme", `{"description": "deploy", "repo_url": "git://github.com/x/y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, env.engine, http.MethodPost, "/request", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	assert.Empty(t, env.store.List())
}

func TestListJobs_ReturnsSubmissionOrderWithoutLogs(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{release: make(chan struct{})})

	var ids []string
	for i := 0; i < 3; i++ {
		w := doJSON(t, env.engine, http.MethodPost, "/request",
			`{"description": "deploy", "repo_url": "https://github.com/x/y"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			JobID string `json:"job_id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		ids = append(ids, resp.JobID)
	}

	w := doJSON(t, env.engine, http.MethodGet, "/list", "")
	require.Equal(t, http.StatusOK, w.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 3)
	for i, item := range list {
		assert.Equal(t, ids[i], item["id"])
		assert.NotContains(t, item, "logs")
		assert.Contains(t, item, "log_count")
	}
}

func TestGetJob_ReturnsLogsAndResult(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.dispatcher.Start(ctx)

	w := doJSON(t, env.engine, http.MethodPost, "/request",
		`{"description": "deploy", "repo_url": "https://github.com/x/y"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		snap, err := env.store.Get(resp.JobID)
		return err == nil && snap.Status == job.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	w = doJSON(t, env.engine, http.MethodGet, "/job/"+resp.JobID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var detail struct {
		Status string   `json:"status"`
		Result string   `json:"result"`
		Logs   []string `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, "completed", detail.Status)
	assert.Equal(t, "http://1.2.3.4:8080", detail.Result)
	assert.NotEmpty(t, detail.Logs)
}

func TestGetJob_Errors(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{})

	w := doJSON(t, env.engine, http.MethodGet, "/job/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, env.engine, http.MethodGet, "/job/3f9f3f7a-9ddc-4f08-bf3f-000000000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestDeploy_AfterShutdownReturns503(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.dispatcher.Start(ctx)
	env.dispatcher.Stop()

	w := doJSON(t, env.engine, http.MethodPost, "/request",
		`{"description": "deploy", "repo_url": "https://github.com/x/y"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &blockedRunner{})
	w := doJSON(t, env.engine, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

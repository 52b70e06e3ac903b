package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/queueforge/taskqueue/internal/agent"
	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/scheduler"
	"github.com/queueforge/taskqueue/internal/store"
	"github.com/queueforge/taskqueue/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "8080", Host: "localhost", Env: "test"},
		Scheduler: config.SchedulerConfig{
			DefaultMaxConcurrency: 2,
			DefaultRetryCount:     1,
			DefaultRetryDelay:     10 * time.Millisecond,
			DefaultTimeoutPerTask: time.Second,
			MaxRetryDelay:         time.Second,
			RetryBackoffFactor:    2,
			ShutdownTimeout:       time.Second,
		},
		Agent:  config.AgentConfig{Endpoints: map[string]string{}},
		Logger: config.LoggerConfig{Level: "error", Format: "json"},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE"},
			AllowedHeaders: []string{"Content-Type"},
		},
	}
}

// newTestRouter wires the full Control API route table against an
// in-process Queue Store and Scheduler Manager, mirroring how
// cmd/apiserver/main.go assembles the server, but without a network
// listener or live agent endpoints.
func newTestRouter(t *testing.T) (*gin.Engine, store.Store, *scheduler.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	log := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	st := store.NewMemoryStore()
	mgr := scheduler.NewManager(st, agent.NewInvoker(http.DefaultClient, log.Logger), scheduler.StaticResolver(cfg.Agent.Endpoints), scheduler.Config{
		MaxRetryDelay:      cfg.Scheduler.MaxRetryDelay,
		RetryBackoffFactor: cfg.Scheduler.RetryBackoffFactor,
		ShutdownTimeout:    cfg.Scheduler.ShutdownTimeout,
	}, log.Logger)

	router := gin.New()
	Setup(router, cfg, log, st, mgr)
	return router, st, mgr
}

func TestRoutes_HealthAndReadiness(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/store", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_CreateGetAndListQueue(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body, err := json.Marshal(map[string]any{
		"name": "nightly-sync",
		"tasks": []map[string]any{
			{"agentId": "agent-1", "message": "run the sync"},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		QueueID string `json:"queueId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.QueueID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queue/"+created.QueueID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queues", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_StartRegistersSchedulerImmediately(t *testing.T) {
	router, st, mgr := newTestRouter(t)
	ctx := context.Background()

	body, err := json.Marshal(map[string]any{
		"name": "dispatch-now",
		"tasks": []map[string]any{
			{"agentId": "agent-1", "message": "run the sync"},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		QueueID string `json:"queueId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/queue/"+created.QueueID+"/start", nil))
	require.Equal(t, http.StatusOK, w.Code)

	require.True(t, mgr.IsRunning(created.QueueID))
	require.NoError(t, mgr.Stop(created.QueueID))

	_, err = st.LoadQueue(ctx, created.QueueID)
	require.NoError(t, err)
}

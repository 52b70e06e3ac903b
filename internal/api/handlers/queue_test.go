package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queueforge/taskqueue/internal/agent"
	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/models"
	"github.com/queueforge/taskqueue/internal/scheduler"
	"github.com/queueforge/taskqueue/internal/store"
)

func newCtx() context.Context { return context.Background() }

func testDefaults() config.QueueSettingsDefaults {
	return config.QueueSettingsDefaults{
		MaxConcurrency: 2,
		RetryCount:     1,
		RetryDelay:     10 * time.Millisecond,
		TimeoutPerTask: time.Second,
	}
}

func newTestManager(st store.Store) *scheduler.Manager {
	return scheduler.NewManager(st, agent.NewInvoker(http.DefaultClient, slog.Default()), scheduler.StaticResolver(map[string]string{}), scheduler.Config{}, slog.Default())
}

func newTestHandler(st store.Store) (*QueueHandler, *scheduler.Manager) {
	mgr := newTestManager(st)
	return NewQueueHandler(st, mgr, testDefaults(), slog.Default()), mgr
}

func seedQueue(t *testing.T, st store.Store, ctx context.Context, status models.QueueStatus, taskStatus models.TaskStatus) *models.Queue {
	t.Helper()
	now := time.Now()
	task := &models.Task{
		ID:         models.NewID(),
		AgentID:    "agent-1",
		Message:    "do the thing",
		Priority:   5,
		Status:     taskStatus,
		MaxRetries: 1,
		CreatedAt:  now,
	}
	if taskStatus == models.TaskStatusFailed {
		task.Error = &models.TaskError{Type: models.TaskErrorTypeExecution, Message: "boom", OccurredAt: now}
	}
	q := &models.Queue{
		ID:        models.NewID(),
		Name:      "test-queue",
		Status:    status,
		Settings:  models.QueueSettings{MaxConcurrency: 1, RetryCount: 1, RetryDelay: 10, TimeoutPerTask: 1000},
		Tasks:     []*models.Task{task},
		CreatedAt: now,
	}
	task.QueueID = q.ID
	q.RecomputeMetrics()
	require.NoError(t, st.SaveQueue(ctx, q))
	require.NoError(t, st.SaveTask(ctx, task))
	return q
}

func TestQueueHandler_GetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	h, _ := newTestHandler(st)
	r := gin.New()
	r.GET("/api/queue/:id", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueueHandler_GetFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusIdle, models.TaskStatusPending)
	h, _ := newTestHandler(st)
	r := gin.New()
	r.GET("/api/queue/:id", h.Get)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/"+q.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), q.ID)
}

func TestQueueHandler_ListEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	h, _ := newTestHandler(st)
	r := gin.New()
	r.GET("/api/queues", h.List)

	req := httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queues":[]`)
}

func TestQueueHandler_BusyAgentsEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	h, _ := newTestHandler(st)
	r := gin.New()
	r.GET("/api/queue/busy-agents", h.BusyAgents)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/busy-agents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"busyAgents":[]`)
}

func TestQueueHandler_DeleteRunningWithoutForceRefused(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusRunning, models.TaskStatusInProgress)
	h, _ := newTestHandler(st)
	r := gin.New()
	r.DELETE("/api/queue/:id", h.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/api/queue/"+q.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_DeleteIdleSucceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusIdle, models.TaskStatusPending)
	h, _ := newTestHandler(st)
	r := gin.New()
	r.DELETE("/api/queue/:id", h.Delete)

	req := httptest.NewRequest(http.MethodDelete, "/api/queue/"+q.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	reloaded, err := st.LoadQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded)
}

func TestQueueHandler_StartRejectsAlreadyRunning(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusRunning, models.TaskStatusInProgress)
	h, _ := newTestHandler(st)
	r := gin.New()
	r.POST("/api/queue/:id/start", h.Start)

	req := httptest.NewRequest(http.MethodPost, "/api/queue/"+q.ID+"/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_StartBeginsDispatchImmediately(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusIdle, models.TaskStatusPending)
	h, mgr := newTestHandler(st)
	r := gin.New()
	r.POST("/api/queue/:id/start", h.Start)

	req := httptest.NewRequest(http.MethodPost, "/api/queue/"+q.ID+"/start", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "streamUrl")
	assert.True(t, mgr.IsRunning(q.ID))

	_ = mgr.Stop(q.ID)
}

func TestQueueHandler_RetryTaskResetsState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusIdle, models.TaskStatusFailed)
	h, _ := newTestHandler(st)
	r := gin.New()
	r.POST("/api/queue/:id/tasks/:taskId/retry", h.RetryTask)

	req := httptest.NewRequest(http.MethodPost, "/api/queue/"+q.ID+"/tasks/"+q.Tasks[0].ID+"/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	reloaded, err := st.LoadTask(ctx, q.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, reloaded.Status)
	assert.Equal(t, 0, reloaded.RetryCount)
	assert.Nil(t, reloaded.Error)
}

func TestQueueHandler_DeadLetterListsFailedTasks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusIdle, models.TaskStatusFailed)
	h, _ := newTestHandler(st)
	r := gin.New()
	r.GET("/api/queue/:id/dead-letter", h.DeadLetter)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/"+q.ID+"/dead-letter", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), q.Tasks[0].ID)
}

func TestQueueHandler_MetricsReflectsLiveState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemoryStore()
	ctx := newCtx()
	q := seedQueue(t, st, ctx, models.QueueStatusIdle, models.TaskStatusPending)
	h, mgr := newTestHandler(st)
	r := gin.New()
	r.GET("/api/queue/:id/metrics", h.Metrics)

	req := httptest.NewRequest(http.MethodGet, "/api/queue/"+q.ID+"/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":false`)
	assert.False(t, mgr.IsRunning(q.ID))
}

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/models"
	"github.com/queueforge/taskqueue/internal/scheduler"
	"github.com/queueforge/taskqueue/internal/store"
)

// QueueHandler implements the Control API's queue resource family, grounded
// on the teacher's handlers.TaskHandler (one struct per resource, thin
// translation between HTTP and the store/scheduler layers).
type QueueHandler struct {
	store    store.Store
	manager  *scheduler.Manager
	defaults config.QueueSettingsDefaults
	logger   *slog.Logger
}

func NewQueueHandler(st store.Store, mgr *scheduler.Manager, defaults config.QueueSettingsDefaults, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{store: st, manager: mgr, defaults: defaults, logger: logger.With("component", "queue_handler")}
}

// Create handles POST /api/queue.
func (h *QueueHandler) Create(c *gin.Context) {
	body, ok := c.MustGet("validated_body").(*models.CreateQueueRequest)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	settings := models.QueueSettings{
		MaxConcurrency: h.defaults.MaxConcurrency,
		RetryCount:     h.defaults.RetryCount,
		RetryDelay:     h.defaults.RetryDelay.Milliseconds(),
		TimeoutPerTask: h.defaults.TimeoutPerTask.Milliseconds(),
	}
	if body.Settings != nil {
		settings = *body.Settings
	}

	now := time.Now()
	queue := &models.Queue{
		ID:          models.NewID(),
		Name:        body.Name,
		Description: body.Description,
		Status:      models.QueueStatusIdle,
		Settings:    settings,
		Tasks:       make([]*models.Task, 0, len(body.Tasks)),
		CreatedAt:   now,
	}

	for _, input := range body.Tasks {
		priority := 5
		if input.Priority != nil {
			priority = *input.Priority
		}
		queue.Tasks = append(queue.Tasks, &models.Task{
			ID:                  models.NewID(),
			QueueID:             queue.ID,
			AgentID:             input.AgentID,
			Message:             input.Message,
			Priority:            priority,
			EstimatedComplexity: input.EstimatedComplexity,
			Status:              models.TaskStatusPending,
			MaxRetries:          settings.RetryCount,
			CreatedAt:           now,
		})
	}
	queue.RecomputeMetrics()

	if err := h.store.SaveQueue(c.Request.Context(), queue); err != nil {
		h.logger.Error("failed to save queue", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create queue"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"queueId": queue.ID, "queue": queue})
}

// Get handles GET /api/queue/{id}.
func (h *QueueHandler) Get(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": queue})
}

// List handles GET /api/queues.
func (h *QueueHandler) List(c *gin.Context) {
	summaries, err := h.store.ListQueues(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list queues", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list queues"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queues": summaries})
}

// Delete handles DELETE /api/queue/{id}?force=true|false.
func (h *QueueHandler) Delete(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}

	force := c.Query("force") == "true"
	if queue.Status == models.QueueStatusRunning && !force {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queue is running; pass force=true to stop and delete it"})
		return
	}

	if queue.Status == models.QueueStatusRunning && force {
		if err := h.manager.Stop(queue.ID); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			h.logger.Error("failed to stop scheduler before delete", "queue_id", queue.ID, "error", err)
		}
	}

	if err := h.store.DeleteQueue(c.Request.Context(), queue.ID); err != nil {
		h.logger.Error("failed to delete queue", "queue_id", queue.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete queue"})
		return
	}
	c.Status(http.StatusOK)
}

// Start handles POST /api/queue/{id}/start. Per the resolved open question in
// SPEC_FULL.md §9 (option b), /start itself registers the queue with the
// scheduler.Manager and dispatching begins immediately in the background;
// the SSE stream is a passive subscriber that may attach at any point.
func (h *QueueHandler) Start(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}
	if queue.Status == models.QueueStatusRunning {
		c.JSON(http.StatusBadRequest, gin.H{"error": "queue is already running"})
		return
	}

	if err := h.manager.Start(c.Request.Context(), queue.ID); err != nil {
		h.logger.Error("failed to start scheduler", "queue_id", queue.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queueId":   queue.ID,
		"status":    string(models.QueueStatusRunning),
		"streamUrl": "/api/queue/stream/" + queue.ID,
	})
}

// Pause handles POST /api/queue/{id}/pause.
func (h *QueueHandler) Pause(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}
	if err := h.manager.Pause(queue.ID); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		h.logger.Error("failed to pause scheduler", "queue_id", queue.ID, "error", err)
	}
	c.Status(http.StatusOK)
}

// Resume handles POST /api/queue/{id}/resume.
func (h *QueueHandler) Resume(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}
	if err := h.manager.Resume(queue.ID); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		h.logger.Error("failed to resume scheduler", "queue_id", queue.ID, "error", err)
	}
	now := time.Now()
	if err := h.store.UpdateQueueStatus(c.Request.Context(), queue.ID, models.QueueStatusRunning, &now); err != nil {
		h.logger.Error("failed to persist resumed status", "queue_id", queue.ID, "error", err)
	}
	c.Status(http.StatusOK)
}

// Abort handles POST /api/queue/{id}/abort (supplemented feature). It stops
// the active scheduler immediately; the scheduler's own drain logic marks
// the queue failed with reason "Queue was stopped".
func (h *QueueHandler) Abort(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}
	if err := h.manager.Stop(queue.ID); err != nil {
		if errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "queue has no active scheduler"})
			return
		}
		h.logger.Error("failed to abort scheduler", "queue_id", queue.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to abort queue"})
		return
	}
	c.Status(http.StatusOK)
}

// RetryTask handles POST /api/queue/{id}/tasks/{taskId}/retry.
func (h *QueueHandler) RetryTask(c *gin.Context) {
	queueID := c.Param("id")
	taskID := c.Param("taskId")

	task, err := h.store.LoadTask(c.Request.Context(), taskID)
	if err != nil || task == nil || task.QueueID != queueID {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	// TaskUpdate cannot clear timestamps, so the whole reset task is saved.
	task.Status = models.TaskStatusPending
	task.RetryCount = 0
	task.Result = nil
	task.Error = nil
	task.StartedAt = nil
	task.CompletedAt = nil

	if err := h.store.SaveTask(c.Request.Context(), task); err != nil {
		h.logger.Error("failed to reset task for retry", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry task"})
		return
	}
	if err := h.store.RequeueTask(c.Request.Context(), queueID, taskID); err != nil {
		h.logger.Error("failed to requeue task", "task_id", taskID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry task"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": task})
}

// BusyAgents handles GET /api/queue/busy-agents.
func (h *QueueHandler) BusyAgents(c *gin.Context) {
	busy, err := h.store.GetBusyAgents(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load busy agents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load busy agents"})
		return
	}
	agentIDs := make([]string, 0, len(busy))
	for id := range busy {
		agentIDs = append(agentIDs, id)
	}
	c.JSON(http.StatusOK, gin.H{"busyAgents": agentIDs})
}

// DeadLetter handles GET /api/queue/{id}/dead-letter (supplemented feature):
// a read-only projection over tasks whose terminal status is failed,
// grounded on the teacher's dead-letter-queue failure-reason histogram.
func (h *QueueHandler) DeadLetter(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}

	type deadLetterEntry struct {
		TaskID     string           `json:"taskId"`
		AgentID    string           `json:"agentId"`
		RetryCount int              `json:"retryCount"`
		Error      *models.TaskError `json:"error,omitempty"`
	}

	entries := make([]deadLetterEntry, 0)
	reasons := make(map[string]int)
	for _, t := range queue.Tasks {
		if t.Status != models.TaskStatusFailed {
			continue
		}
		entries = append(entries, deadLetterEntry{
			TaskID:     t.ID,
			AgentID:    t.AgentID,
			RetryCount: t.RetryCount,
			Error:      t.Error,
		})
		if t.Error != nil {
			reasons[string(t.Error.Type)]++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"queueId": queue.ID,
		"tasks":   entries,
		"stats":   reasons,
	})
}

// Metrics handles GET /api/queue/{id}/metrics (supplemented feature):
// the persisted QueueMetrics plus whether a scheduler is currently active for
// the queue, grounded on the teacher's worker.WorkerPoolStats reporting style.
// Slot usage (active dispatches, available slots) is not reported.
func (h *QueueHandler) Metrics(c *gin.Context) {
	queue, err := h.loadQueue(c)
	if err != nil {
		return
	}

	resp := gin.H{"queueId": queue.ID, "metrics": queue.Metrics}

	if sched, ok := h.manager.Get(queue.ID); ok {
		resp["live"] = gin.H{"running": true, "queueId": sched.QueueID()}
	} else {
		resp["live"] = gin.H{"running": false}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *QueueHandler) loadQueue(c *gin.Context) (*models.Queue, error) {
	id := c.Param("id")
	queue, err := h.store.LoadQueue(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to load queue", "queue_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load queue"})
		return nil, err
	}
	if queue == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "queue not found"})
		return nil, store.ErrQueueNotFound
	}
	return queue, nil
}

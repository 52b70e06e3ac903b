// Package store implements the Queue Store (C2): durable queue/task
// persistence, the pending-task list scheduler dispatch pops from, the
// global busy-agents set, and queue event pub/sub.
package store

import (
	"context"
	"time"

	"github.com/queueforge/taskqueue/internal/models"
)

// EventHandler receives one published TaskQueueEvent per invocation.
type EventHandler func(models.TaskQueueEvent)

// Unsubscribe detaches a previously registered EventHandler.
type Unsubscribe func()

// Store is the Queue Store's operation set, matching spec.md §4.2 exactly.
// Implementations: CompositeStore (Postgres + Redis, durable default) and
// MemoryStore (in-process fallback per the spec's failure model).
type Store interface {
	Connect(ctx context.Context) error
	Close() error
	IsAvailable(ctx context.Context) bool

	SaveQueue(ctx context.Context, q *models.Queue) error
	LoadQueue(ctx context.Context, id string) (*models.Queue, error)
	DeleteQueue(ctx context.Context, id string) error
	ListQueues(ctx context.Context) ([]models.QueueSummary, error)
	UpdateQueueStatus(ctx context.Context, id string, status models.QueueStatus, ts *time.Time) error
	UpdateQueueMetrics(ctx context.Context, id string, metrics models.QueueMetrics) error

	SaveTask(ctx context.Context, t *models.Task) error
	LoadTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, update models.TaskUpdate) error

	// PopNextTask atomically pops the head of queueID's pending list and
	// returns its task id, or "" if the pending list is empty.
	PopNextTask(ctx context.Context, queueID string) (string, error)
	RequeueTask(ctx context.Context, queueID, taskID string) error

	MarkAgentBusy(ctx context.Context, agentID string) error
	MarkAgentAvailable(ctx context.Context, agentID string) error
	GetBusyAgents(ctx context.Context) (map[string]bool, error)

	PublishEvent(ctx context.Context, queueID string, event models.TaskQueueEvent) error
	SubscribeToQueue(ctx context.Context, queueID string, handler EventHandler) (Unsubscribe, error)

	LoadInterruptedQueues(ctx context.Context) ([]*models.Queue, error)
	ResetInterruptedQueue(ctx context.Context, id string) error
}

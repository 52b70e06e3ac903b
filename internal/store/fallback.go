package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/models"
)

// FallbackStore picks between a durable primary and an in-process fallback
// on every call, per spec.md §4.2's failure model: "the system transparently
// degrades to an in-process fallback... preserving API semantics."
type FallbackStore struct {
	primary  Store
	fallback Store
	logger   *slog.Logger
}

func NewFallbackStore(primary, fallback Store, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{primary: primary, fallback: fallback, logger: logger}
}

// NewStore builds the Store selected by cfg.Backend. "memory" always returns
// a bare MemoryStore; "composite" returns a FallbackStore that prefers the
// durable CompositeStore and degrades to memory when it is unreachable.
func NewStore(ctx context.Context, cfg *config.StoreConfig, logger *slog.Logger) (Store, error) {
	if cfg.Backend == "memory" {
		mem := NewMemoryStore()
		return mem, mem.Connect(ctx)
	}

	composite := NewCompositeStore(cfg, logger)
	memory := NewMemoryStore()
	fb := NewFallbackStore(composite, memory, logger)

	if err := composite.Connect(ctx); err != nil {
		logger.Warn("composite store unreachable at startup, starting degraded", "error", err)
	}
	return fb, nil
}

func (f *FallbackStore) active(ctx context.Context) Store {
	if f.primary != nil && f.primary.IsAvailable(ctx) {
		return f.primary
	}
	return f.fallback
}

func (f *FallbackStore) Connect(ctx context.Context) error {
	if err := f.primary.Connect(ctx); err != nil {
		f.logger.Warn("primary store connect failed, operating in degraded mode", "error", err)
	}
	return f.fallback.Connect(ctx)
}

func (f *FallbackStore) Close() error {
	_ = f.primary.Close()
	return f.fallback.Close()
}

func (f *FallbackStore) IsAvailable(ctx context.Context) bool {
	return f.primary.IsAvailable(ctx) || f.fallback.IsAvailable(ctx)
}

func (f *FallbackStore) SaveQueue(ctx context.Context, q *models.Queue) error {
	return f.active(ctx).SaveQueue(ctx, q)
}

func (f *FallbackStore) LoadQueue(ctx context.Context, id string) (*models.Queue, error) {
	return f.active(ctx).LoadQueue(ctx, id)
}

func (f *FallbackStore) DeleteQueue(ctx context.Context, id string) error {
	return f.active(ctx).DeleteQueue(ctx, id)
}

func (f *FallbackStore) ListQueues(ctx context.Context) ([]models.QueueSummary, error) {
	return f.active(ctx).ListQueues(ctx)
}

func (f *FallbackStore) UpdateQueueStatus(ctx context.Context, id string, status models.QueueStatus, ts *time.Time) error {
	return f.active(ctx).UpdateQueueStatus(ctx, id, status, ts)
}

func (f *FallbackStore) UpdateQueueMetrics(ctx context.Context, id string, metrics models.QueueMetrics) error {
	return f.active(ctx).UpdateQueueMetrics(ctx, id, metrics)
}

func (f *FallbackStore) SaveTask(ctx context.Context, t *models.Task) error {
	return f.active(ctx).SaveTask(ctx, t)
}

func (f *FallbackStore) LoadTask(ctx context.Context, id string) (*models.Task, error) {
	return f.active(ctx).LoadTask(ctx, id)
}

func (f *FallbackStore) UpdateTask(ctx context.Context, id string, update models.TaskUpdate) error {
	return f.active(ctx).UpdateTask(ctx, id, update)
}

func (f *FallbackStore) PopNextTask(ctx context.Context, queueID string) (string, error) {
	return f.active(ctx).PopNextTask(ctx, queueID)
}

func (f *FallbackStore) RequeueTask(ctx context.Context, queueID, taskID string) error {
	return f.active(ctx).RequeueTask(ctx, queueID, taskID)
}

func (f *FallbackStore) MarkAgentBusy(ctx context.Context, agentID string) error {
	return f.active(ctx).MarkAgentBusy(ctx, agentID)
}

func (f *FallbackStore) MarkAgentAvailable(ctx context.Context, agentID string) error {
	return f.active(ctx).MarkAgentAvailable(ctx, agentID)
}

func (f *FallbackStore) GetBusyAgents(ctx context.Context) (map[string]bool, error) {
	return f.active(ctx).GetBusyAgents(ctx)
}

func (f *FallbackStore) PublishEvent(ctx context.Context, queueID string, event models.TaskQueueEvent) error {
	return f.active(ctx).PublishEvent(ctx, queueID, event)
}

func (f *FallbackStore) SubscribeToQueue(ctx context.Context, queueID string, handler EventHandler) (Unsubscribe, error) {
	return f.active(ctx).SubscribeToQueue(ctx, queueID, handler)
}

func (f *FallbackStore) LoadInterruptedQueues(ctx context.Context) ([]*models.Queue, error) {
	return f.active(ctx).LoadInterruptedQueues(ctx)
}

func (f *FallbackStore) ResetInterruptedQueue(ctx context.Context, id string) error {
	return f.active(ctx).ResetInterruptedQueue(ctx, id)
}

package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/queueforge/taskqueue/internal/config"
	"github.com/queueforge/taskqueue/internal/models"
)

// CompositeStore is the durable Queue Store backend: Postgres holds queue
// and task records, Redis holds the pending-task list, the busy-agents set,
// and the per-queue pub/sub channel. Grounded on the teacher's split between
// internal/database (Postgres repositories) and internal/queue (Redis sorted
// sets, Lua atomic ops) — here unified behind one Store interface instead of
// two independently-consumed packages.
type CompositeStore struct {
	cfg    *config.StoreConfig
	logger *slog.Logger

	pg    *postgresStore
	redis *redisClient
}

func NewCompositeStore(cfg *config.StoreConfig, logger *slog.Logger) *CompositeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompositeStore{cfg: cfg, logger: logger}
}

func (c *CompositeStore) Connect(ctx context.Context) error {
	pg, err := newPostgresStore(ctx, c.cfg, c.logger)
	if err != nil {
		return NewOperationError("connect", "postgres", err, true)
	}

	redis, err := newRedisClient(c.cfg, c.logger)
	if err != nil {
		pg.close()
		return NewOperationError("connect", "redis", err, true)
	}
	if err := redis.Ping(ctx); err != nil {
		pg.close()
		return err
	}

	c.pg = pg
	c.redis = redis
	c.logger.Info("composite store connected",
		"postgres_host", c.cfg.PostgresHost, "redis_host", c.cfg.RedisHost)
	return nil
}

func (c *CompositeStore) Close() error {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.pg != nil {
		c.pg.close()
	}
	return nil
}

func (c *CompositeStore) IsAvailable(ctx context.Context) bool {
	if c.pg == nil || c.redis == nil {
		return false
	}
	if err := c.pg.ping(ctx); err != nil {
		return false
	}
	if err := c.redis.Ping(ctx); err != nil {
		return false
	}
	return true
}

func (c *CompositeStore) SaveQueue(ctx context.Context, q *models.Queue) error {
	if err := c.pg.saveQueue(ctx, q); err != nil {
		return err
	}

	var pendingIDs []string
	for _, t := range q.Tasks {
		if isNonTerminalPendingStatus(t.Status) {
			pendingIDs = append(pendingIDs, t.ID)
		}
	}
	return c.redis.rebuildPending(ctx, q.ID, pendingIDs)
}

func (c *CompositeStore) LoadQueue(ctx context.Context, id string) (*models.Queue, error) {
	return c.pg.loadQueue(ctx, id)
}

func (c *CompositeStore) DeleteQueue(ctx context.Context, id string) error {
	if err := c.pg.deleteQueue(ctx, id); err != nil {
		return err
	}
	return c.redis.deletePending(ctx, id)
}

func (c *CompositeStore) ListQueues(ctx context.Context) ([]models.QueueSummary, error) {
	return c.pg.listQueues(ctx)
}

func (c *CompositeStore) UpdateQueueStatus(ctx context.Context, id string, status models.QueueStatus, ts *time.Time) error {
	return c.pg.updateQueueStatus(ctx, id, status, ts)
}

func (c *CompositeStore) UpdateQueueMetrics(ctx context.Context, id string, metrics models.QueueMetrics) error {
	return c.pg.updateQueueMetrics(ctx, id, metrics)
}

func (c *CompositeStore) SaveTask(ctx context.Context, t *models.Task) error {
	return c.pg.saveTask(ctx, t)
}

func (c *CompositeStore) LoadTask(ctx context.Context, id string) (*models.Task, error) {
	return c.pg.loadTask(ctx, id)
}

func (c *CompositeStore) UpdateTask(ctx context.Context, id string, update models.TaskUpdate) error {
	return c.pg.updateTask(ctx, id, update)
}

func (c *CompositeStore) PopNextTask(ctx context.Context, queueID string) (string, error) {
	return c.redis.popPending(ctx, queueID)
}

func (c *CompositeStore) RequeueTask(ctx context.Context, queueID, taskID string) error {
	return c.redis.pushPending(ctx, queueID, taskID)
}

func (c *CompositeStore) MarkAgentBusy(ctx context.Context, agentID string) error {
	return c.redis.markAgentBusy(ctx, agentID)
}

func (c *CompositeStore) MarkAgentAvailable(ctx context.Context, agentID string) error {
	return c.redis.markAgentAvailable(ctx, agentID)
}

func (c *CompositeStore) GetBusyAgents(ctx context.Context) (map[string]bool, error) {
	return c.redis.getBusyAgents(ctx)
}

func (c *CompositeStore) PublishEvent(ctx context.Context, queueID string, event models.TaskQueueEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return NewOperationError("publish_event", queueID, err, false)
	}
	return c.redis.publish(ctx, queueID, string(payload))
}

func (c *CompositeStore) SubscribeToQueue(ctx context.Context, queueID string, handler EventHandler) (Unsubscribe, error) {
	return c.redis.subscribe(ctx, queueID, func(payload string) {
		var event models.TaskQueueEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.logger.Warn("dropping malformed queue event", "queue_id", queueID, "error", err)
			return
		}
		handler(event)
	})
}

func (c *CompositeStore) LoadInterruptedQueues(ctx context.Context) ([]*models.Queue, error) {
	return c.pg.loadInterruptedQueues(ctx)
}

func (c *CompositeStore) ResetInterruptedQueue(ctx context.Context, id string) error {
	if err := c.pg.resetInterruptedQueueTasks(ctx, id); err != nil {
		return err
	}

	q, err := c.pg.loadQueue(ctx, id)
	if err != nil {
		return err
	}
	if q == nil {
		return NewOperationError("reset_interrupted_queue", id, ErrQueueNotFound, false)
	}

	var pendingIDs []string
	for _, t := range q.Tasks {
		if isNonTerminalStatus(t.Status) {
			pendingIDs = append(pendingIDs, t.ID)
		}
	}
	if err := c.redis.rebuildPending(ctx, id, pendingIDs); err != nil {
		return err
	}
	return c.redis.clearBusyAgents(ctx)
}

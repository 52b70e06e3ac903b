package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/queueforge/taskqueue/internal/config"
)

const busyAgentsKey = "taskqueue:busy_agents"

func pendingListKey(queueID string) string {
	return fmt.Sprintf("taskqueue:queue:%s:pending", queueID)
}

func eventChannel(queueID string) string {
	return fmt.Sprintf("taskqueue:queue:%s:events", queueID)
}

// redisClient wraps go-redis with the pending-list/busy-agents/pub-sub
// primitives the composite store needs, grounded on the teacher's
// queue.RedisClient wrapper (same pool-config shape, same pattern of
// translating every client error into a package error type).
type redisClient struct {
	client *redis.Client
	logger *slog.Logger
}

func newRedisClient(cfg *config.StoreConfig, logger *slog.Logger) (*redisClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("store config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		DB:       cfg.RedisDatabase,
		PoolSize: cfg.RedisPoolSize,
	}
	if cfg.RedisPassword != "" {
		options.Password = cfg.RedisPassword
	}

	return &redisClient{client: redis.NewClient(options), logger: logger}, nil
}

func (r *redisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewOperationError("redis_ping", "", err, true)
	}
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}

// pushPending appends a task id to the tail of queueID's pending list.
func (r *redisClient) pushPending(ctx context.Context, queueID, taskID string) error {
	if err := r.client.RPush(ctx, pendingListKey(queueID), taskID).Err(); err != nil {
		return NewOperationError("push_pending", taskID, err, true)
	}
	return nil
}

// popPending atomically pops and returns the head of queueID's pending
// list, or "" if empty.
func (r *redisClient) popPending(ctx context.Context, queueID string) (string, error) {
	result, err := r.client.LPop(ctx, pendingListKey(queueID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", NewOperationError("pop_pending", queueID, err, true)
	}
	return result, nil
}

// rebuildPending atomically replaces queueID's pending list with taskIDs,
// preserving order.
func (r *redisClient) rebuildPending(ctx context.Context, queueID string, taskIDs []string) error {
	key := pendingListKey(queueID)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(taskIDs) > 0 {
		members := make([]interface{}, len(taskIDs))
		for i, id := range taskIDs {
			members[i] = id
		}
		pipe.RPush(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return NewOperationError("rebuild_pending", queueID, err, true)
	}
	return nil
}

func (r *redisClient) deletePending(ctx context.Context, queueID string) error {
	if err := r.client.Del(ctx, pendingListKey(queueID)).Err(); err != nil {
		return NewOperationError("delete_pending", queueID, err, true)
	}
	return nil
}

func (r *redisClient) markAgentBusy(ctx context.Context, agentID string) error {
	if err := r.client.SAdd(ctx, busyAgentsKey, agentID).Err(); err != nil {
		return NewOperationError("mark_agent_busy", agentID, err, true)
	}
	return nil
}

func (r *redisClient) markAgentAvailable(ctx context.Context, agentID string) error {
	if err := r.client.SRem(ctx, busyAgentsKey, agentID).Err(); err != nil {
		return NewOperationError("mark_agent_available", agentID, err, true)
	}
	return nil
}

func (r *redisClient) getBusyAgents(ctx context.Context) (map[string]bool, error) {
	members, err := r.client.SMembers(ctx, busyAgentsKey).Result()
	if err != nil {
		return nil, NewOperationError("get_busy_agents", "", err, true)
	}
	result := make(map[string]bool, len(members))
	for _, m := range members {
		result[m] = true
	}
	return result, nil
}

func (r *redisClient) clearBusyAgents(ctx context.Context) error {
	if err := r.client.Del(ctx, busyAgentsKey).Err(); err != nil {
		return NewOperationError("clear_busy_agents", "", err, true)
	}
	return nil
}

func (r *redisClient) publish(ctx context.Context, queueID, payload string) error {
	if err := r.client.Publish(ctx, eventChannel(queueID), payload).Err(); err != nil {
		return NewOperationError("publish_event", queueID, err, true)
	}
	return nil
}

// subscribe starts a background goroutine delivering every message on
// queueID's channel to onMessage until the returned cancel func is called.
func (r *redisClient) subscribe(ctx context.Context, queueID string, onMessage func(payload string)) (cancel func(), err error) {
	pubsub := r.client.Subscribe(ctx, eventChannel(queueID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, NewOperationError("subscribe", queueID, err, true)
	}

	done := make(chan struct{})
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				onMessage(msg.Payload)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = pubsub.Close()
	}, nil
}

// Package recovery implements the Recovery Coordinator (C5): a one-shot
// startup procedure that re-normalizes queues interrupted by a process
// crash or restart back into a deterministic, resumable state.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/queueforge/taskqueue/internal/store"
)

// Coordinator runs the recovery pass against a Store at process startup,
// before the control API begins accepting scheduler-mutating requests.
type Coordinator struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: st, logger: logger.With("component", "recovery_coordinator")}
}

// Result summarizes a completed recovery pass.
type Result struct {
	QueueIDs []string
}

// Run loads every interrupted queue (status running or paused) and resets
// each one: in-flight tasks return to pending, the busy-agents set is
// cleared, and the queue itself lands in paused awaiting an explicit
// resume. Individual reset failures are logged and skipped rather than
// aborting the whole pass, since one corrupt queue record should not block
// recovery of the rest.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	queues, err := c.store.LoadInterruptedQueues(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("recovery: load interrupted queues: %w", err)
	}

	if len(queues) == 0 {
		c.logger.Info("recovery: no interrupted queues found")
		return Result{}, nil
	}

	c.logger.Info("recovery: interrupted queues found", "count", len(queues))

	result := Result{QueueIDs: make([]string, 0, len(queues))}
	for _, q := range queues {
		if err := c.store.ResetInterruptedQueue(ctx, q.ID); err != nil {
			c.logger.Error("recovery: failed to reset interrupted queue", "queue_id", q.ID, "error", err)
			continue
		}
		c.logger.Info("recovery: queue reset to paused", "queue_id", q.ID, "previous_status", q.Status)
		result.QueueIDs = append(result.QueueIDs, q.ID)
	}

	return result, nil
}

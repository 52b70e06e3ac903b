package scheduler

import (
	"context"

	"github.com/queueforge/taskqueue/internal/agent"
	"github.com/queueforge/taskqueue/internal/models"
)

// Invoker is the Agent Invoker surface the Scheduler depends on. Matching
// *agent.Invoker's method set lets the Scheduler accept the real invoker in
// production and a fake in tests, the same role executor.TaskExecutor plays
// for the teacher's BaseWorker.
type Invoker interface {
	Invoke(ctx context.Context, req agent.InvokeRequest) (*models.TaskResult, *models.TaskError)
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/queueforge/taskqueue/internal/models"
	"github.com/queueforge/taskqueue/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RefusesSecondStart(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	task := newTestTask("q1", "agentA", 1)
	queue := newTestQueue("q1", models.QueueSettings{MaxConcurrency: 1, RetryCount: 1, RetryDelay: 5, TimeoutPerTask: 5000}, task)
	require.NoError(t, st.SaveQueue(ctx, queue))

	invoker := newFakeInvoker()
	resolver := StaticResolver{"agentA": "http://agentA"}
	mgr := NewManager(st, invoker, resolver, fastConfig(), nil)

	require.NoError(t, mgr.Start(ctx, "q1"))
	err := mgr.Start(ctx, "q1")
	assert.ErrorIs(t, err, ErrSchedulerAlreadyRunning)
}

func TestManager_DeregistersOnCompletion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	task := newTestTask("q1", "agentA", 1)
	queue := newTestQueue("q1", models.QueueSettings{MaxConcurrency: 1, RetryCount: 1, RetryDelay: 5, TimeoutPerTask: 5000}, task)
	require.NoError(t, st.SaveQueue(ctx, queue))

	invoker := newFakeInvoker()
	resolver := StaticResolver{"agentA": "http://agentA"}
	mgr := NewManager(st, invoker, resolver, fastConfig(), nil)

	require.NoError(t, mgr.Start(ctx, "q1"))
	assert.True(t, mgr.IsRunning("q1"))

	require.Eventually(t, func() bool { return !mgr.IsRunning("q1") }, 3*time.Second, 10*time.Millisecond)
}

func TestManager_PauseResumeUnknownQueue(t *testing.T) {
	st := store.NewMemoryStore()
	mgr := NewManager(st, newFakeInvoker(), StaticResolver{}, fastConfig(), nil)

	assert.ErrorIs(t, mgr.Pause("missing"), ErrSchedulerNotRunning)
	assert.ErrorIs(t, mgr.Resume("missing"), ErrSchedulerNotRunning)
	assert.ErrorIs(t, mgr.Stop("missing"), ErrSchedulerNotRunning)
}

// Package scheduler implements the Scheduler (C3): one instance per running
// queue, selecting ready tasks by priority under a concurrency cap,
// dispatching them through the Agent Invoker, applying retry policy, and
// emitting lifecycle events to the Queue Store's pub/sub channel.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/queueforge/taskqueue/internal/agent"
	"github.com/queueforge/taskqueue/internal/models"
	"github.com/queueforge/taskqueue/internal/store"
)

// Config carries the backoff and polling knobs a Scheduler needs beyond a
// queue's own QueueSettings (mirrors config.SchedulerConfig without
// importing the config package, the same dependency-free pattern
// config.QueueSettingsDefaults uses for models.QueueSettings).
type Config struct {
	MaxRetryDelay      time.Duration
	RetryBackoffFactor float64
	PauseTickInterval  time.Duration
	IdleTickInterval   time.Duration
	ShutdownTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 5 * time.Minute
	}
	if c.RetryBackoffFactor <= 1.0 {
		c.RetryBackoffFactor = 2.0
	}
	if c.PauseTickInterval <= 0 {
		c.PauseTickInterval = 100 * time.Millisecond
	}
	if c.IdleTickInterval <= 0 {
		c.IdleTickInterval = 50 * time.Millisecond
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// Scheduler drives one queue's execution to completion. Grounded on the
// teacher's worker.BaseWorker (processingLoop's select-driven main loop,
// graceful-shutdown-with-timeout Stop), restructured around one queue's
// task list instead of a single global dequeue loop.
type Scheduler struct {
	queueID  string
	store    store.Store
	invoker  Invoker
	resolver AgentResolver
	cfg      Config
	logger   *slog.Logger

	slots *slotTracker

	mu      sync.Mutex
	running map[string]*runningDispatch
	started bool
	stopped bool

	// storeCtx is used for all Queue Store reads/writes and event
	// publication; it outlives Stop so final metrics and the terminal
	// queue status can still be persisted during drain.
	storeCtx context.Context

	// dispatchCtx is the parent of every in-flight dispatch's per-task
	// context; Stop cancels it to abort running invocations and pending
	// retry timers, per spec.md §5's cancellation model.
	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc

	pauseCh chan bool // true = pause, false = resume
	stopCh  chan struct{}
	doneCh  chan struct{}

	completions chan dispatchOutcome
	wg          sync.WaitGroup
}

type runningDispatch struct {
	task   *models.Task
	cancel context.CancelFunc
}

type dispatchOutcome struct {
	task   *models.Task
	result *models.TaskResult
	err    *models.TaskError
}

// New constructs a Scheduler for one queue. It does not start dispatching
// until Start is called.
func New(queueID string, st store.Store, invoker Invoker, resolver AgentResolver, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queueID:     queueID,
		store:       st,
		invoker:     invoker,
		resolver:    resolver,
		cfg:         cfg.withDefaults(),
		logger:      logger.With("component", "scheduler", "queue_id", queueID),
		running:     make(map[string]*runningDispatch),
		pauseCh:     make(chan bool, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		completions: make(chan dispatchOutcome, 16),
	}
}

// QueueID reports which queue this instance drives.
func (s *Scheduler) QueueID() string { return s.queueID }

// Start loads the queue's current settings and begins the main loop in a
// background goroutine. Start is idempotent-unsafe by design: callers
// (scheduler.Manager) are responsible for the single-active-scheduler
// invariant from spec.md §5.
func (s *Scheduler) Start(ctx context.Context) error {
	queue, err := s.store.LoadQueue(ctx, s.queueID)
	if err != nil {
		return NewSchedulerError(s.queueID, "load_queue", err)
	}
	if queue == nil {
		return NewSchedulerError(s.queueID, "load_queue", store.ErrQueueNotFound)
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.started = true
	s.slots = newSlotTracker(queue.Settings.MaxConcurrency)
	s.mu.Unlock()

	s.storeCtx = context.Background()
	s.dispatchCtx, s.cancelDispatch = context.WithCancel(ctx)

	go s.run(queue.Settings)

	return nil
}

// Pause signals the main loop to stop dispatching new tasks. Running
// dispatches are unaffected.
func (s *Scheduler) Pause() {
	select {
	case s.pauseCh <- true:
	case <-s.doneCh:
	}
}

// Resume signals the main loop to continue dispatching.
func (s *Scheduler) Resume() {
	select {
	case s.pauseCh <- false:
	case <-s.doneCh:
	}
}

// Stop cancels every running dispatch and any pending retry timers, then
// waits (bounded by cfg.ShutdownTimeout) for the main loop to finish
// recomputing metrics and persisting the terminal queue status.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("scheduler shutdown timeout reached")
	}
}

// Done reports whether the main loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.doneCh }

func (s *Scheduler) run(settings models.QueueSettings) {
	defer close(s.doneCh)

	now := time.Now()
	if err := s.store.UpdateQueueStatus(s.storeCtx, s.queueID, models.QueueStatusRunning, &now); err != nil {
		s.logger.Error("failed to mark queue running", "error", err)
	}
	s.emit(models.NewQueueStartedEvent(s.queueID))

	wasPaused := false
	ticker := time.NewTicker(s.cfg.IdleTickInterval)
	defer ticker.Stop()

	aborted := false

loop:
	for {
		select {
		case <-s.stopCh:
			aborted = true
			break loop

		case pause := <-s.pauseCh:
			if pause && !wasPaused {
				wasPaused = true
				s.emit(models.NewQueuePausedEvent(s.queueID))
			} else if !pause && wasPaused {
				wasPaused = false
				s.emit(models.NewQueueResumedEvent(s.queueID))
			}
			continue loop

		case outcome := <-s.completions:
			s.handleCompletion(outcome, settings)

		case <-ticker.C:
		}

		if wasPaused {
			continue loop
		}

		queue, err := s.store.LoadQueue(s.storeCtx, s.queueID)
		if err != nil {
			s.logger.Error("failed to load queue", "error", err)
			continue loop
		}
		if queue == nil {
			break loop
		}

		s.mu.Lock()
		stillRunning := len(s.running)
		s.mu.Unlock()

		if !queue.HasNonTerminalTasks() && stillRunning == 0 {
			break loop
		}

		s.dispatchReady(queue, settings)
	}

	s.drain(aborted, settings)
}

// dispatchReady selects the priority-ordered ready set and launches one
// background invocation per slot available, per spec.md §4.3 steps 2-3.
func (s *Scheduler) dispatchReady(queue *models.Queue, settings models.QueueSettings) {
	available := s.slots.available()
	if available <= 0 {
		return
	}

	ready := make([]*models.Task, 0, len(queue.Tasks))
	for _, t := range queue.Tasks {
		if t.Status == models.TaskStatusPending || t.Status == models.TaskStatusQueued {
			ready = append(ready, t)
		}
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority < ready[j].Priority })

	if len(ready) > available {
		ready = ready[:available]
	}
	reserved := s.slots.acquire(len(ready))
	ready = ready[:reserved]

	for _, task := range ready {
		s.dispatch(task, settings)
	}
}

func (s *Scheduler) dispatch(task *models.Task, settings models.QueueSettings) {
	endpoint, ok := s.resolver.Resolve(task.AgentID)
	if !ok {
		s.slots.release(1)
		taskErr := &models.TaskError{
			Type:       models.TaskErrorTypeExecution,
			Message:    "agent not found",
			Retryable:  false,
			OccurredAt: time.Now(),
		}
		s.finalizeFailure(task, taskErr)
		return
	}

	now := time.Now()
	status := models.TaskStatusInProgress
	if err := s.store.UpdateTask(s.storeCtx, task.ID, models.TaskUpdate{Status: &status, StartedAt: &now}); err != nil {
		s.logger.Error("failed to mark task in_progress", "task_id", task.ID, "error", err)
	}
	if err := s.store.MarkAgentBusy(s.storeCtx, task.AgentID); err != nil {
		s.logger.Error("failed to mark agent busy", "agent_id", task.AgentID, "error", err)
	}
	if _, err := s.store.PopNextTask(s.storeCtx, s.queueID); err != nil {
		s.logger.Warn("failed to pop pending list entry", "error", err)
	}

	task.Status = status
	task.StartedAt = &now
	s.emit(models.NewTaskStartedEvent(s.queueID, task.ID, task.AgentID))

	dispatchCtx, cancel := context.WithCancel(s.dispatchCtx)
	s.mu.Lock()
	s.running[task.ID] = &runningDispatch{task: task, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, taskErr := s.invoker.Invoke(dispatchCtx, agent.InvokeRequest{
			Endpoint:  endpoint,
			Message:   task.Message,
			RequestID: task.ID,
			Timeout:   settings.TimeoutPerTaskDuration(),
		})
		select {
		case s.completions <- dispatchOutcome{task: task, result: result, err: taskErr}:
		case <-s.dispatchCtx.Done():
		}
	}()
}

func (s *Scheduler) handleCompletion(outcome dispatchOutcome, settings models.QueueSettings) {
	s.mu.Lock()
	delete(s.running, outcome.task.ID)
	s.mu.Unlock()
	s.slots.release(1)

	if err := s.store.MarkAgentAvailable(s.storeCtx, outcome.task.AgentID); err != nil {
		s.logger.Error("failed to mark agent available", "agent_id", outcome.task.AgentID, "error", err)
	}

	if outcome.result != nil {
		s.finalizeSuccess(outcome.task, outcome.result)
		return
	}

	taskErr := outcome.err
	if taskErr.Retryable && outcome.task.RetryCount < outcome.task.MaxRetries {
		s.scheduleRetry(outcome.task, settings)
		return
	}
	s.finalizeFailure(outcome.task, taskErr)
}

func (s *Scheduler) finalizeSuccess(task *models.Task, result *models.TaskResult) {
	completed := models.TaskStatusCompleted
	if err := s.store.UpdateTask(s.storeCtx, task.ID, models.TaskUpdate{
		Status:      &completed,
		CompletedAt: &result.CompletedAt,
		Result:      result,
	}); err != nil {
		s.logger.Error("failed to persist task completion", "task_id", task.ID, "error", err)
	}
	task.Status = completed
	task.CompletedAt = &result.CompletedAt
	task.Result = result
	s.emit(models.NewTaskCompletedEvent(s.queueID, task.ID, *result))
}

func (s *Scheduler) finalizeFailure(task *models.Task, taskErr *models.TaskError) {
	failed := models.TaskStatusFailed
	now := taskErr.OccurredAt
	if err := s.store.UpdateTask(s.storeCtx, task.ID, models.TaskUpdate{
		Status:      &failed,
		CompletedAt: &now,
		Error:       taskErr,
	}); err != nil {
		s.logger.Error("failed to persist task failure", "task_id", task.ID, "error", err)
	}
	task.Status = failed
	task.CompletedAt = &now
	task.Error = taskErr
	s.emit(models.NewTaskFailedEvent(s.queueID, task.ID, *taskErr))
}

// scheduleRetry increments retryCount, marks the task retrying, and after
// the backoff delay requeues it to pending — unless the scheduler is
// stopped first, in which case the task ends failed with type:abort per
// spec.md §8's boundary behavior ("Abort during retry delay prevents
// requeue").
func (s *Scheduler) scheduleRetry(task *models.Task, settings models.QueueSettings) {
	newCount := task.RetryCount + 1
	retrying := models.TaskStatusRetrying
	if err := s.store.UpdateTask(s.storeCtx, task.ID, models.TaskUpdate{Status: &retrying, RetryCount: &newCount}); err != nil {
		s.logger.Error("failed to persist retrying status", "task_id", task.ID, "error", err)
	}
	task.Status = retrying
	task.RetryCount = newCount
	s.emit(models.NewTaskRetryingEvent(s.queueID, task.ID, newCount, task.MaxRetries))

	delay := calculateRetryDelay(newCount, settings.RetryDelayDuration(), s.cfg.RetryBackoffFactor, s.cfg.MaxRetryDelay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(delay):
			pending := models.TaskStatusPending
			if err := s.store.UpdateTask(s.storeCtx, task.ID, models.TaskUpdate{Status: &pending, ClearResult: true, ClearError: true}); err != nil {
				s.logger.Error("failed to requeue retrying task", "task_id", task.ID, "error", err)
				return
			}
			if err := s.store.RequeueTask(s.storeCtx, s.queueID, task.ID); err != nil {
				s.logger.Error("failed to push task back onto pending list", "task_id", task.ID, "error", err)
			}
			task.Status = pending
		case <-s.dispatchCtx.Done():
			abortErr := &models.TaskError{
				Type:       models.TaskErrorTypeAbort,
				Message:    "queue was stopped during retry delay",
				Retryable:  false,
				OccurredAt: time.Now(),
			}
			s.finalizeFailure(task, abortErr)
		}
	}()
}

// drain cancels any still-running dispatches, waits for background work to
// settle, then recomputes metrics from ground-truth task state and persists
// the terminal queue status, per spec.md §4.3 step 5.
func (s *Scheduler) drain(aborted bool, _ models.QueueSettings) {
	s.mu.Lock()
	for _, rd := range s.running {
		rd.cancel()
	}
	s.mu.Unlock()

	if s.cancelDispatch != nil {
		s.cancelDispatch()
	}

	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("timed out waiting for in-flight dispatches to settle")
	}

	// Dispatches whose outcome the loop never handled end failed with
	// type abort, and their agents are released.
	s.mu.Lock()
	leftover := make([]*models.Task, 0, len(s.running))
	for id, rd := range s.running {
		leftover = append(leftover, rd.task)
		delete(s.running, id)
	}
	s.mu.Unlock()
	for _, task := range leftover {
		if err := s.store.MarkAgentAvailable(s.storeCtx, task.AgentID); err != nil {
			s.logger.Error("failed to mark agent available", "agent_id", task.AgentID, "error", err)
		}
		s.finalizeFailure(task, &models.TaskError{Type: models.TaskErrorTypeAbort, Message: "Queue was stopped", Retryable: false, OccurredAt: time.Now()})
	}

	drainCtx := context.Background()
	queue, err := s.store.LoadQueue(drainCtx, s.queueID)
	if err != nil || queue == nil {
		s.logger.Error("failed to reload queue for final metrics", "error", err)
		return
	}

	queue.RecomputeMetrics()
	if err := s.store.UpdateQueueMetrics(drainCtx, s.queueID, queue.Metrics); err != nil {
		s.logger.Error("failed to persist final metrics", "error", err)
	}

	now := time.Now()
	if aborted || queue.Metrics.FailedTasks > 0 {
		status := models.QueueStatusFailed
		reason := "one or more tasks failed"
		if aborted {
			reason = "Queue was stopped"
		}
		if err := s.store.UpdateQueueStatus(drainCtx, s.queueID, status, &now); err != nil {
			s.logger.Error("failed to persist terminal status", "error", err)
		}
		s.emit(models.NewQueueFailedEvent(s.queueID, reason))
		return
	}

	if err := s.store.UpdateQueueStatus(drainCtx, s.queueID, models.QueueStatusCompleted, &now); err != nil {
		s.logger.Error("failed to persist terminal status", "error", err)
	}
	s.emit(models.NewQueueCompletedEvent(s.queueID, queue.Metrics))
}

func (s *Scheduler) emit(event models.TaskQueueEvent) {
	ctx := s.storeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.store.PublishEvent(ctx, s.queueID, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.Type, "error", err)
	}
}

package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/queueforge/taskqueue/internal/store"
)

// Manager owns the map of queue id to running *Scheduler, enforcing
// spec.md §5's "single active scheduler per queue" invariant. Grounded on
// the teacher's worker.BaseWorkerManager, collapsed from a whole-process
// worker pool down to a registry keyed by queue id (this domain has one
// scheduler goroutine per queue rather than a shared pool of workers
// pulling from one global queue).
type Manager struct {
	store    store.Store
	invoker  Invoker
	resolver AgentResolver
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	schedulers map[string]*Scheduler
}

func NewManager(st store.Store, invoker Invoker, resolver AgentResolver, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      st,
		invoker:    invoker,
		resolver:   resolver,
		cfg:        cfg,
		logger:     logger.With("component", "scheduler_manager"),
		schedulers: make(map[string]*Scheduler),
	}
}

// Start registers and starts a Scheduler for queueID, refusing a second
// start while one is already active (spec.md §4.4's /start 400 case and
// §5's single-active-scheduler invariant).
func (m *Manager) Start(ctx context.Context, queueID string) error {
	m.mu.Lock()
	if _, exists := m.schedulers[queueID]; exists {
		m.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	sched := New(queueID, m.store, m.invoker, m.resolver, m.cfg, m.logger)
	m.schedulers[queueID] = sched
	m.mu.Unlock()

	if err := sched.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.schedulers, queueID)
		m.mu.Unlock()
		return err
	}

	go func() {
		<-sched.Done()
		m.mu.Lock()
		delete(m.schedulers, queueID)
		m.mu.Unlock()
	}()

	return nil
}

// Get returns the active Scheduler for queueID, if any.
func (m *Manager) Get(queueID string) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedulers[queueID]
	return s, ok
}

// Pause signals the queue's active scheduler to pause, or
// ErrSchedulerNotRunning if none is active.
func (m *Manager) Pause(queueID string) error {
	s, ok := m.Get(queueID)
	if !ok {
		return ErrSchedulerNotRunning
	}
	s.Pause()
	return nil
}

// Resume signals the queue's active scheduler to resume.
func (m *Manager) Resume(queueID string) error {
	s, ok := m.Get(queueID)
	if !ok {
		return ErrSchedulerNotRunning
	}
	s.Resume()
	return nil
}

// Stop cancels the queue's active scheduler and waits for it to finish.
func (m *Manager) Stop(queueID string) error {
	s, ok := m.Get(queueID)
	if !ok {
		return ErrSchedulerNotRunning
	}
	s.Stop()
	return nil
}

// IsRunning reports whether a scheduler is currently active for queueID.
func (m *Manager) IsRunning(queueID string) bool {
	_, ok := m.Get(queueID)
	return ok
}

// ActiveQueueIDs returns the ids of all queues with an active scheduler.
func (m *Manager) ActiveQueueIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.schedulers))
	for id := range m.schedulers {
		ids = append(ids, id)
	}
	return ids
}

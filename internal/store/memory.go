package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/queueforge/taskqueue/internal/models"
)

// MemoryStore is a full in-process implementation of Store, used as the
// fallback described in spec.md §4.2's failure model when Postgres or Redis
// is unreachable. It loses persistence across restarts but preserves the
// interface's semantics exactly, including pending-list ordering and the
// single-event-per-subscriber pub/sub contract.
type MemoryStore struct {
	mu          sync.RWMutex
	queues      map[string]*memQueue
	busyAgents  map[string]bool
	subscribers map[string]map[int]EventHandler
	nextSubID   int
}

type memQueue struct {
	queue   *models.Queue
	tasks   map[string]*models.Task
	pending []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues:      make(map[string]*memQueue),
		busyAgents:  make(map[string]bool),
		subscribers: make(map[string]map[int]EventHandler),
	}
}

func (m *MemoryStore) Connect(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                      { return nil }
func (m *MemoryStore) IsAvailable(ctx context.Context) bool {
	return true
}

func deepCopyQueue(q *models.Queue) *models.Queue {
	data, err := json.Marshal(q)
	if err != nil {
		return nil
	}
	var cp models.Queue
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	return &cp
}

func deepCopyTask(t *models.Task) *models.Task {
	data, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var cp models.Task
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	return &cp
}

func isNonTerminalPendingStatus(s models.TaskStatus) bool {
	return s == models.TaskStatusPending || s == models.TaskStatusQueued
}

func isNonTerminalStatus(s models.TaskStatus) bool {
	switch s {
	case models.TaskStatusPending, models.TaskStatusQueued, models.TaskStatusInProgress, models.TaskStatusRetrying:
		return true
	default:
		return false
	}
}

func (m *MemoryStore) SaveQueue(ctx context.Context, q *models.Queue) error {
	if q == nil {
		return NewOperationError("save_queue", "", ErrQueueNotFound, false)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := deepCopyQueue(q)
	mq := &memQueue{
		queue: cp,
		tasks: make(map[string]*models.Task, len(cp.Tasks)),
	}
	for _, t := range cp.Tasks {
		mq.tasks[t.ID] = t
		if isNonTerminalPendingStatus(t.Status) {
			mq.pending = append(mq.pending, t.ID)
		}
	}
	m.queues[q.ID] = mq
	return nil
}

func (m *MemoryStore) LoadQueue(ctx context.Context, id string) (*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mq, ok := m.queues[id]
	if !ok {
		return nil, nil
	}
	return deepCopyQueue(mq.queue), nil
}

func (m *MemoryStore) DeleteQueue(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.queues, id)
	delete(m.subscribers, id)
	return nil
}

func (m *MemoryStore) ListQueues(ctx context.Context) ([]models.QueueSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]models.QueueSummary, 0, len(m.queues))
	for _, mq := range m.queues {
		summaries = append(summaries, mq.queue.ToSummary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (m *MemoryStore) UpdateQueueStatus(ctx context.Context, id string, status models.QueueStatus, ts *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.queues[id]
	if !ok {
		return NewOperationError("update_queue_status", id, ErrQueueNotFound, false)
	}

	mq.queue.Status = status
	if ts != nil {
		switch status {
		case models.QueueStatusRunning:
			mq.queue.StartedAt = ts
		case models.QueueStatusCompleted, models.QueueStatusFailed:
			mq.queue.CompletedAt = ts
		}
	}
	return nil
}

func (m *MemoryStore) UpdateQueueMetrics(ctx context.Context, id string, metrics models.QueueMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.queues[id]
	if !ok {
		return NewOperationError("update_queue_metrics", id, ErrQueueNotFound, false)
	}
	mq.queue.Metrics = metrics
	return nil
}

func (m *MemoryStore) SaveTask(ctx context.Context, t *models.Task) error {
	if t == nil {
		return NewOperationError("save_task", "", ErrTaskNotFound, false)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.queues[t.QueueID]
	if !ok {
		return NewOperationError("save_task", t.ID, ErrQueueNotFound, false)
	}

	cp := deepCopyTask(t)
	if _, exists := mq.tasks[t.ID]; !exists {
		mq.queue.Tasks = append(mq.queue.Tasks, cp)
	} else {
		for i, existing := range mq.queue.Tasks {
			if existing.ID == t.ID {
				mq.queue.Tasks[i] = cp
				break
			}
		}
	}
	mq.tasks[t.ID] = cp
	return nil
}

func (m *MemoryStore) LoadTask(ctx context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mq := range m.queues {
		if t, ok := mq.tasks[id]; ok {
			return deepCopyTask(t), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) UpdateTask(ctx context.Context, id string, update models.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mq := range m.queues {
		t, ok := mq.tasks[id]
		if !ok {
			continue
		}
		if update.Status != nil {
			t.Status = *update.Status
		}
		if update.StartedAt != nil {
			t.StartedAt = update.StartedAt
		}
		if update.CompletedAt != nil {
			t.CompletedAt = update.CompletedAt
		}
		if update.Result != nil {
			t.Result = update.Result
		}
		if update.ClearResult {
			t.Result = nil
		}
		if update.Error != nil {
			t.Error = update.Error
		}
		if update.ClearError {
			t.Error = nil
		}
		if update.RetryCount != nil {
			t.RetryCount = *update.RetryCount
		}
		return nil
	}
	return NewOperationError("update_task", id, ErrTaskNotFound, false)
}

func (m *MemoryStore) PopNextTask(ctx context.Context, queueID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.queues[queueID]
	if !ok {
		return "", NewOperationError("pop_next_task", queueID, ErrQueueNotFound, false)
	}
	if len(mq.pending) == 0 {
		return "", nil
	}
	next := mq.pending[0]
	mq.pending = mq.pending[1:]
	return next, nil
}

func (m *MemoryStore) RequeueTask(ctx context.Context, queueID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.queues[queueID]
	if !ok {
		return NewOperationError("requeue_task", taskID, ErrQueueNotFound, false)
	}
	mq.pending = append(mq.pending, taskID)
	return nil
}

func (m *MemoryStore) MarkAgentBusy(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busyAgents[agentID] = true
	return nil
}

func (m *MemoryStore) MarkAgentAvailable(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busyAgents, agentID)
	return nil
}

func (m *MemoryStore) GetBusyAgents(ctx context.Context) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]bool, len(m.busyAgents))
	for k, v := range m.busyAgents {
		result[k] = v
	}
	return result, nil
}

func (m *MemoryStore) PublishEvent(ctx context.Context, queueID string, event models.TaskQueueEvent) error {
	m.mu.RLock()
	handlers := make([]EventHandler, 0, len(m.subscribers[queueID]))
	for _, h := range m.subscribers[queueID] {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (m *MemoryStore) SubscribeToQueue(ctx context.Context, queueID string, handler EventHandler) (Unsubscribe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribers[queueID] == nil {
		m.subscribers[queueID] = make(map[int]EventHandler)
	}
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[queueID][id] = handler

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers[queueID], id)
	}, nil
}

func (m *MemoryStore) LoadInterruptedQueues(ctx context.Context) ([]*models.Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Queue
	for _, mq := range m.queues {
		if mq.queue.Status == models.QueueStatusRunning || mq.queue.Status == models.QueueStatusPaused {
			result = append(result, deepCopyQueue(mq.queue))
		}
	}
	return result, nil
}

func (m *MemoryStore) ResetInterruptedQueue(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mq, ok := m.queues[id]
	if !ok {
		return NewOperationError("reset_interrupted_queue", id, ErrQueueNotFound, false)
	}

	mq.queue.Status = models.QueueStatusPaused

	var pending []string
	for _, t := range mq.queue.Tasks {
		if t.Status == models.TaskStatusInProgress || t.Status == models.TaskStatusRetrying {
			t.Status = models.TaskStatusPending
			t.StartedAt = nil
		}
		if isNonTerminalStatus(t.Status) {
			pending = append(pending, t.ID)
		}
	}
	mq.pending = pending

	for agentID := range m.busyAgents {
		delete(m.busyAgents, agentID)
	}
	return nil
}

package models

import (
	"fmt"
	"time"
)

// QueueStatus represents the lifecycle state of a Queue (§4.3 state machine).
type QueueStatus string

const (
	QueueStatusIdle      QueueStatus = "idle"
	QueueStatusRunning   QueueStatus = "running"
	QueueStatusPaused    QueueStatus = "paused"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

func ValidateQueueStatus(status QueueStatus) error {
	switch status {
	case QueueStatusIdle, QueueStatusRunning, QueueStatusPaused, QueueStatusCompleted, QueueStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid queue status: %s", status)
	}
}

// QueueSettings are the four fixed, per-queue knobs named in spec.md §3.
// Any other key in a request's settings object is ignored when the body is
// decoded; it is not rejected.
type QueueSettings struct {
	MaxConcurrency int   `json:"maxConcurrency"`
	RetryCount     int   `json:"retryCount"`
	RetryDelay     int64 `json:"retryDelay"`     // milliseconds
	TimeoutPerTask int64 `json:"timeoutPerTask"` // milliseconds
}

func (s QueueSettings) RetryDelayDuration() time.Duration {
	return time.Duration(s.RetryDelay) * time.Millisecond
}

func (s QueueSettings) TimeoutPerTaskDuration() time.Duration {
	return time.Duration(s.TimeoutPerTask) * time.Millisecond
}

// QueueMetrics is a derived but persisted snapshot recomputed from
// ground-truth task statuses when a queue is created and whenever it reaches
// a terminal state. The metrics endpoint returns the stored snapshot; it does
// not recompute it.
type QueueMetrics struct {
	TotalTasks            int    `json:"totalTasks"`
	CompletedTasks        int    `json:"completedTasks"`
	FailedTasks           int    `json:"failedTasks"`
	PendingTasks          int    `json:"pendingTasks"`
	InProgressTasks       int    `json:"inProgressTasks"`
	AverageTaskDurationMs *int64 `json:"averageTaskDuration,omitempty"`
}

// Queue is a named, ordered collection of Tasks sharing one set of settings.
type Queue struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description,omitempty"`
	Status      QueueStatus `json:"status"`
	Settings    QueueSettings `json:"settings"`
	Metrics     QueueMetrics  `json:"metrics"`
	Tasks       []*Task       `json:"tasks"`
	CreatedAt   time.Time     `json:"createdAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// RecomputeMetrics derives QueueMetrics from the current status of every
// task owned by the queue, per spec.md §4.3 step 5.
func (q *Queue) RecomputeMetrics() {
	m := QueueMetrics{TotalTasks: len(q.Tasks)}
	var totalDuration time.Duration
	var completedWithDuration int

	for _, t := range q.Tasks {
		switch t.Status {
		case TaskStatusCompleted:
			m.CompletedTasks++
			if t.StartedAt != nil && t.CompletedAt != nil {
				totalDuration += t.CompletedAt.Sub(*t.StartedAt)
				completedWithDuration++
			}
		case TaskStatusFailed, TaskStatusCancelled:
			m.FailedTasks++
		case TaskStatusPending, TaskStatusQueued:
			m.PendingTasks++
		case TaskStatusInProgress, TaskStatusRetrying:
			m.InProgressTasks++
		}
	}

	if completedWithDuration > 0 {
		avg := int64(totalDuration/time.Duration(completedWithDuration)) / int64(time.Millisecond)
		m.AverageTaskDurationMs = &avg
	}

	q.Metrics = m
}

// QueueSummary is the lightweight projection returned by listQueues.
type QueueSummary struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Status         QueueStatus `json:"status"`
	TaskCount      int         `json:"taskCount"`
	CompletedCount int         `json:"completedCount"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (q *Queue) ToSummary() QueueSummary {
	return QueueSummary{
		ID:             q.ID,
		Name:           q.Name,
		Status:         q.Status,
		TaskCount:      len(q.Tasks),
		CompletedCount: q.Metrics.CompletedTasks,
		CreatedAt:      q.CreatedAt,
	}
}

// HasNonTerminalTasks reports whether any task is still pending, queued,
// in-progress or retrying.
func (q *Queue) HasNonTerminalTasks() bool {
	for _, t := range q.Tasks {
		switch t.Status {
		case TaskStatusPending, TaskStatusQueued, TaskStatusInProgress, TaskStatusRetrying:
			return true
		}
	}
	return false
}

// CreateQueueRequest is the body of POST /api/queue.
type CreateQueueRequest struct {
	Name        string            `json:"name" validate:"required,min=1,max=255"`
	Description *string           `json:"description,omitempty" validate:"omitempty,max=1000"`
	Tasks       []CreateTaskInput `json:"tasks" validate:"required,min=1,dive"`
	Settings    *QueueSettings    `json:"settings,omitempty"`
}

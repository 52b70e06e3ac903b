package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTask(status TaskStatus) *Task {
	return &Task{ID: NewID(), Status: status}
}

func TestQueue_RecomputeMetrics(t *testing.T) {
	now := time.Now()
	started := now.Add(-2 * time.Second)

	q := &Queue{
		Tasks: []*Task{
			{ID: "1", Status: TaskStatusCompleted, StartedAt: &started, CompletedAt: &now},
			{ID: "2", Status: TaskStatusFailed},
			{ID: "3", Status: TaskStatusPending},
			{ID: "4", Status: TaskStatusInProgress},
		},
	}

	q.RecomputeMetrics()

	assert.Equal(t, 4, q.Metrics.TotalTasks)
	assert.Equal(t, 1, q.Metrics.CompletedTasks)
	assert.Equal(t, 1, q.Metrics.FailedTasks)
	assert.Equal(t, 1, q.Metrics.PendingTasks)
	assert.Equal(t, 1, q.Metrics.InProgressTasks)
	if assert.NotNil(t, q.Metrics.AverageTaskDurationMs) {
		assert.InDelta(t, 2000, *q.Metrics.AverageTaskDurationMs, 50)
	}
}

func TestQueue_HasNonTerminalTasks(t *testing.T) {
	q := &Queue{Tasks: []*Task{newTask(TaskStatusCompleted), newTask(TaskStatusFailed)}}
	assert.False(t, q.HasNonTerminalTasks())

	q.Tasks = append(q.Tasks, newTask(TaskStatusPending))
	assert.True(t, q.HasNonTerminalTasks())
}

func TestQueue_ToSummary(t *testing.T) {
	q := &Queue{ID: "q1", Name: "demo", Status: QueueStatusRunning, Tasks: []*Task{newTask(TaskStatusCompleted)}}
	q.RecomputeMetrics()

	summary := q.ToSummary()
	assert.Equal(t, "q1", summary.ID)
	assert.Equal(t, 1, summary.TaskCount)
	assert.Equal(t, 1, summary.CompletedCount)
}

func TestQueueSettings_Durations(t *testing.T) {
	s := QueueSettings{RetryDelay: 2000, TimeoutPerTask: 300000}
	assert.Equal(t, 2*time.Second, s.RetryDelayDuration())
	assert.Equal(t, 5*time.Minute, s.TimeoutPerTaskDuration())
}

func TestValidateQueueStatus(t *testing.T) {
	assert.NoError(t, ValidateQueueStatus(QueueStatusIdle))
	assert.Error(t, ValidateQueueStatus(QueueStatus("bogus")))
}

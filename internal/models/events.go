package models

import "encoding/json"

// EventType is the tagged-union discriminant for TaskQueueEvent, carried
// identically over SSE and the Queue Store's pub/sub channel.
type EventType string

const (
	EventQueueStarted   EventType = "queue_started"
	EventQueuePaused    EventType = "queue_paused"
	EventQueueResumed   EventType = "queue_resumed"
	EventQueueCompleted EventType = "queue_completed"
	EventQueueFailed    EventType = "queue_failed"
	EventTaskStarted    EventType = "task_started"
	EventTaskCompleted  EventType = "task_completed"
	EventTaskFailed     EventType = "task_failed"
	EventTaskRetrying   EventType = "task_retrying"
	// EventTaskProgress is declared per spec.md §9 but intentionally never
	// emitted; reserved for future streaming of partial content.
	EventTaskProgress EventType = "task_progress"
)

// TaskQueueEvent is the envelope published to SSE subscribers and the Queue
// Store's per-queue channel. Payload is one of the Event* structs below.
type TaskQueueEvent struct {
	Type    EventType
	Payload interface{}
}

// wireEvent is TaskQueueEvent's JSON shape, used both for the SSE frame body
// and for pub/sub transport across the Queue Store's Redis channel.
type wireEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e TaskQueueEvent) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Type: e.Type, Payload: payload})
}

func (e *TaskQueueEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Type = w.Type

	var payload interface{}
	switch w.Type {
	case EventQueueStarted:
		payload = &EventQueueStartedPayload{}
	case EventQueuePaused:
		payload = &EventQueuePausedPayload{}
	case EventQueueResumed:
		payload = &EventQueueResumedPayload{}
	case EventQueueCompleted:
		payload = &EventQueueCompletedPayload{}
	case EventQueueFailed:
		payload = &EventQueueFailedPayload{}
	case EventTaskStarted:
		payload = &EventTaskStartedPayload{}
	case EventTaskCompleted:
		payload = &EventTaskCompletedPayload{}
	case EventTaskFailed:
		payload = &EventTaskFailedPayload{}
	case EventTaskRetrying:
		payload = &EventTaskRetryingPayload{}
	default:
		e.Payload = nil
		return nil
	}

	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, payload); err != nil {
			return err
		}
	}
	e.Payload = payload
	return nil
}

type EventQueueStartedPayload struct {
	QueueID string `json:"queueId"`
}

type EventQueuePausedPayload struct {
	QueueID string `json:"queueId"`
}

type EventQueueResumedPayload struct {
	QueueID string `json:"queueId"`
}

type EventQueueCompletedPayload struct {
	QueueID string       `json:"queueId"`
	Metrics QueueMetrics `json:"metrics"`
}

type EventQueueFailedPayload struct {
	QueueID string `json:"queueId"`
	Error   string `json:"error"`
}

type EventTaskStartedPayload struct {
	QueueID string `json:"queueId"`
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

type EventTaskCompletedPayload struct {
	QueueID string     `json:"queueId"`
	TaskID  string     `json:"taskId"`
	Result  TaskResult `json:"result"`
}

type EventTaskFailedPayload struct {
	QueueID string    `json:"queueId"`
	TaskID  string    `json:"taskId"`
	Error   TaskError `json:"error"`
}

type EventTaskRetryingPayload struct {
	QueueID    string `json:"queueId"`
	TaskID     string `json:"taskId"`
	Attempt    int    `json:"attempt"`
	MaxRetries int    `json:"maxRetries"`
}

func NewQueueStartedEvent(queueID string) TaskQueueEvent {
	return TaskQueueEvent{Type: EventQueueStarted, Payload: EventQueueStartedPayload{QueueID: queueID}}
}

func NewQueuePausedEvent(queueID string) TaskQueueEvent {
	return TaskQueueEvent{Type: EventQueuePaused, Payload: EventQueuePausedPayload{QueueID: queueID}}
}

func NewQueueResumedEvent(queueID string) TaskQueueEvent {
	return TaskQueueEvent{Type: EventQueueResumed, Payload: EventQueueResumedPayload{QueueID: queueID}}
}

func NewQueueCompletedEvent(queueID string, metrics QueueMetrics) TaskQueueEvent {
	return TaskQueueEvent{Type: EventQueueCompleted, Payload: EventQueueCompletedPayload{QueueID: queueID, Metrics: metrics}}
}

func NewQueueFailedEvent(queueID, errMsg string) TaskQueueEvent {
	return TaskQueueEvent{Type: EventQueueFailed, Payload: EventQueueFailedPayload{QueueID: queueID, Error: errMsg}}
}

func NewTaskStartedEvent(queueID, taskID, agentID string) TaskQueueEvent {
	return TaskQueueEvent{Type: EventTaskStarted, Payload: EventTaskStartedPayload{QueueID: queueID, TaskID: taskID, AgentID: agentID}}
}

func NewTaskCompletedEvent(queueID, taskID string, result TaskResult) TaskQueueEvent {
	return TaskQueueEvent{Type: EventTaskCompleted, Payload: EventTaskCompletedPayload{QueueID: queueID, TaskID: taskID, Result: result}}
}

func NewTaskFailedEvent(queueID, taskID string, taskErr TaskError) TaskQueueEvent {
	return TaskQueueEvent{Type: EventTaskFailed, Payload: EventTaskFailedPayload{QueueID: queueID, TaskID: taskID, Error: taskErr}}
}

func NewTaskRetryingEvent(queueID, taskID string, attempt, maxRetries int) TaskQueueEvent {
	return TaskQueueEvent{Type: EventTaskRetrying, Payload: EventTaskRetryingPayload{QueueID: queueID, TaskID: taskID, Attempt: attempt, MaxRetries: maxRetries}}
}

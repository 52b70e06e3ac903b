package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/queueforge/taskqueue/internal/models"
)

// frameReadDeadline is the per-line read deadline from spec.md §4.1 step 4:
// a silent proxy that stops delivering frames must be detected even while
// the outer per-task deadline has not yet elapsed.
const frameReadDeadline = 30 * time.Second

// InvokeRequest carries everything the Agent Invoker needs to dispatch one
// task (spec.md §4.1's "given (agent endpoint, workingDirectory, message,
// requestId, cancellation token, credential blob, timeout)").
type InvokeRequest struct {
	Endpoint         string
	Message          string
	RequestID        string
	WorkingDirectory string
	Credentials      json.RawMessage
	Timeout          time.Duration
}

type chatRequestBody struct {
	Message          string          `json:"message"`
	RequestID        string          `json:"requestId"`
	WorkingDirectory string          `json:"workingDirectory"`
	Credentials      json.RawMessage `json:"claudeAuth,omitempty"`
}

// Invoker issues one streaming HTTP request per task against a worker
// agent and classifies the outcome into a models.TaskResult or
// models.TaskError. Grounded on the teacher's Executor.Execute: build a
// request, run it under a context deadline, classify via ctx.Err() and
// status-code ranges (here the container lifecycle is replaced by an ndjson
// response-body reader).
type Invoker struct {
	client HTTPClient
	logger *slog.Logger
}

func NewInvoker(client HTTPClient, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{client: client, logger: logger}
}

// Invoke runs InvokeRequest to completion or failure. The returned
// TaskResult and TaskError are mutually exclusive; exactly one is non-nil.
func (i *Invoker) Invoke(ctx context.Context, req InvokeRequest) (*models.TaskResult, *models.TaskError) {
	logger := i.logger.With("request_id", req.RequestID, "operation", "invoke")

	if req.Endpoint == "" {
		return nil, &models.TaskError{
			Type:       models.TaskErrorTypeExecution,
			Message:    ErrEmptyEndpoint.Error(),
			Retryable:  false,
			OccurredAt: time.Now(),
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := i.buildRequest(ctxWithTimeout, req)
	if err != nil {
		return nil, &models.TaskError{
			Type:       models.TaskErrorTypeExecution,
			Message:    err.Error(),
			Retryable:  false,
			OccurredAt: time.Now(),
		}
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		if ctxWithTimeout.Err() == context.DeadlineExceeded {
			logger.Warn("dispatch deadline exceeded before response")
			return nil, &models.TaskError{Type: models.TaskErrorTypeTimeout, Message: "timeout before response", Retryable: true, OccurredAt: time.Now()}
		}
		if ctx.Err() == context.Canceled {
			return nil, &models.TaskError{Type: models.TaskErrorTypeAbort, Message: "dispatch aborted", Retryable: false, OccurredAt: time.Now()}
		}
		logger.Warn("transport error dispatching to agent", "error", err)
		return nil, &models.TaskError{Type: models.TaskErrorTypeNetwork, Message: err.Error(), Retryable: true, OccurredAt: time.Now()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode)
	}

	return i.readFrames(ctxWithTimeout, resp, logger)
}

func (i *Invoker) buildRequest(ctx context.Context, req InvokeRequest) (*http.Request, error) {
	body := chatRequestBody{
		Message:          req.Message,
		RequestID:        req.RequestID,
		WorkingDirectory: req.WorkingDirectory,
		Credentials:      req.Credentials,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	url := req.Endpoint + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	httpReq.Header.Set("Connection", "keep-alive")
	httpReq.Header.Set("Cache-Control", "no-cache")
	return httpReq, nil
}

// classifyStatus implements spec.md §4.1 step 2.
func classifyStatus(status int) *models.TaskError {
	now := time.Now()
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &models.TaskError{Type: models.TaskErrorTypeExecution, Message: fmt.Sprintf("agent returned status %d", status), Retryable: false, OccurredAt: now}
	case status >= 500:
		return &models.TaskError{Type: models.TaskErrorTypeNetwork, Message: fmt.Sprintf("agent returned status %d", status), Retryable: true, OccurredAt: now}
	default:
		return &models.TaskError{Type: models.TaskErrorTypeExecution, Message: fmt.Sprintf("agent returned status %d", status), Retryable: false, OccurredAt: now}
	}
}

// readFrames scans the ndjson response body line by line, enforcing a
// per-frame read deadline alongside the outer context deadline (spec.md
// §4.1 steps 3-4). The scan runs on a background goroutine so a frame
// deadline that fires mid-read can be observed without blocking forever on
// a silent proxy.
func (i *Invoker) readFrames(ctx context.Context, resp *http.Response, logger *slog.Logger) (*models.TaskResult, *models.TaskError) {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	var accumulator bytes.Buffer
	var sessionID *string

	timer := time.NewTimer(frameReadDeadline)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return nil, &models.TaskError{Type: models.TaskErrorTypeNetwork, Message: err.Error(), Retryable: true, OccurredAt: time.Now()}
					}
				default:
				}
				return nil, &models.TaskError{Type: models.TaskErrorTypeNetwork, Message: ErrStreamClosed.Error(), Retryable: true, OccurredAt: time.Now()}
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(frameReadDeadline)

			env, ok := parseFrame(line)
			if !ok {
				continue
			}

			switch env.Type {
			case frameClaudeJSON:
				text, sid := extractText(env)
				accumulator.WriteString(text)
				if sid != nil {
					sessionID = sid
				}
			case frameError:
				msg := env.Error
				if msg == "" {
					msg = "agent reported an error"
				}
				return nil, &models.TaskError{Type: models.TaskErrorTypeExecution, Message: msg, Retryable: true, OccurredAt: time.Now()}
			case frameAborted:
				return nil, &models.TaskError{Type: models.TaskErrorTypeAbort, Message: "agent aborted execution", Retryable: false, OccurredAt: time.Now()}
			case frameDone:
				return &models.TaskResult{
					Type:        models.TaskResultTypeSuccess,
					Content:     accumulator.String(),
					SessionID:   sessionID,
					CompletedAt: time.Now(),
				}, nil
			}

		case <-timer.C:
			logger.Warn("no frame received within read deadline")
			return nil, &models.TaskError{Type: models.TaskErrorTypeTimeout, Message: "no frame received within read deadline", Retryable: true, OccurredAt: time.Now()}

		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return nil, &models.TaskError{Type: models.TaskErrorTypeAbort, Message: "invocation aborted", Retryable: false, OccurredAt: time.Now()}
			}
			return nil, &models.TaskError{Type: models.TaskErrorTypeTimeout, Message: "task timeout exceeded", Retryable: true, OccurredAt: time.Now()}
		}
	}
}

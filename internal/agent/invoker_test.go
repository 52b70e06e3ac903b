package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/queueforge/taskqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Invoker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewInvoker(srv.Client(), nil)
}

func TestInvoker_SuccessPath(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"claude_json","message":{"session_id":"sess-1","content":[{"type":"text","text":"ok"}]}}`)
		flusher.Flush()
		fmt.Fprintln(w, `{"type":"done"}`)
	})

	result, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Message: "hi", RequestID: "r1", Timeout: time.Second})
	require.Nil(t, taskErr)
	require.NotNil(t, result)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, models.TaskResultTypeSuccess, result.Type)
	require.NotNil(t, result.SessionID)
	assert.Equal(t, "sess-1", *result.SessionID)
}

func TestInvoker_UnauthorizedIsNotRetryable(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Timeout: time.Second})
	require.NotNil(t, taskErr)
	assert.Equal(t, models.TaskErrorTypeExecution, taskErr.Type)
	assert.False(t, taskErr.Retryable)
}

func TestInvoker_ServerErrorIsRetryable(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Timeout: time.Second})
	require.NotNil(t, taskErr)
	assert.Equal(t, models.TaskErrorTypeNetwork, taskErr.Type)
	assert.True(t, taskErr.Retryable)
}

func TestInvoker_ErrorFrame(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"type":"error","error":"boom"}`)
	})

	_, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Timeout: time.Second})
	require.NotNil(t, taskErr)
	assert.Equal(t, models.TaskErrorTypeExecution, taskErr.Type)
	assert.True(t, taskErr.Retryable)
	assert.Contains(t, taskErr.Message, "boom")
}

func TestInvoker_AbortedFrame(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"type":"aborted"}`)
	})

	_, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Timeout: time.Second})
	require.NotNil(t, taskErr)
	assert.Equal(t, models.TaskErrorTypeAbort, taskErr.Type)
	assert.False(t, taskErr.Retryable)
}

func TestInvoker_MalformedLinesAreSkipped(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `not json at all`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"type":"unknown_frame"}`)
		fmt.Fprintln(w, `{"type":"done"}`)
	})

	result, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Timeout: time.Second})
	require.Nil(t, taskErr)
	require.NotNil(t, result)
	assert.Equal(t, "", result.Content)
}

func TestInvoker_OuterTimeout(t *testing.T) {
	srv, invoker := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprintln(w, `{"type":"claude_json","message":{"content":[{"type":"text","text":"partial"}]}}`)
		flusher.Flush()
		time.Sleep(200 * time.Millisecond)
		fmt.Fprintln(w, `{"type":"done"}`)
	})

	_, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: srv.URL, Timeout: 50 * time.Millisecond})
	require.NotNil(t, taskErr)
	assert.Equal(t, models.TaskErrorTypeTimeout, taskErr.Type)
	assert.True(t, taskErr.Retryable)
}

func TestInvoker_EmptyEndpoint(t *testing.T) {
	invoker := NewInvoker(http.DefaultClient, nil)
	_, taskErr := invoker.Invoke(context.Background(), InvokeRequest{Endpoint: "", Timeout: time.Second})
	require.NotNil(t, taskErr)
	assert.Equal(t, models.TaskErrorTypeExecution, taskErr.Type)
	assert.False(t, taskErr.Retryable)
}

func TestParseFrame(t *testing.T) {
	_, ok := parseFrame([]byte(""))
	assert.False(t, ok)

	_, ok = parseFrame([]byte("garbage"))
	assert.False(t, ok)

	env, ok := parseFrame([]byte(`{"type":"done"}`))
	assert.True(t, ok)
	assert.Equal(t, frameDone, env.Type)
}


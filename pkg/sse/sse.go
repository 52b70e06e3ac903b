// Package sse writes Server-Sent-Events frames over an http.ResponseWriter,
// the wire format spec.md §4.4 requires for GET /api/queue/stream/{id}.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SetHeaders sets the HTTP hygiene headers spec.md §4.4 requires on the
// streaming endpoint, grounded on the same header set the teacher's own
// health/readiness endpoints reason about for long-lived connections.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Transfer-Encoding", "chunked")
}

// Flusher is the minimal surface a response writer must expose to push a
// frame to the client immediately instead of buffering it.
type Flusher interface {
	Flush()
}

// Writer serializes one event per Write call as an `event:`/`data:` frame.
type Writer struct {
	w http.ResponseWriter
	f Flusher
}

func NewWriter(w http.ResponseWriter, f Flusher) *Writer {
	return &Writer{w: w, f: f}
}

// Write encodes payload as JSON and emits one SSE frame. A marshal failure
// is reported rather than silently dropped, since a lost event breaks the
// per-task ordering guarantee spec.md §5 promises observers.
func (sw *Writer) Write(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal %s event: %w", eventType, err)
	}
	if _, err := fmt.Fprintf(sw.w, "event:%s\ndata:%s\n\n", eventType, data); err != nil {
		return fmt.Errorf("sse: write %s event: %w", eventType, err)
	}
	if sw.f != nil {
		sw.f.Flush()
	}
	return nil
}

// Comment writes an SSE comment line (":keepalive\n\n"), used to hold a
// connection open across idle periods without emitting a real event.
func (sw *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(sw.w, ":%s\n\n", text); err != nil {
		return err
	}
	if sw.f != nil {
		sw.f.Flush()
	}
	return nil
}

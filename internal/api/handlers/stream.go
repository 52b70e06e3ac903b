package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/queueforge/taskqueue/internal/models"
	"github.com/queueforge/taskqueue/internal/store"
	"github.com/queueforge/taskqueue/pkg/sse"
)

// StreamHandler serves GET /api/queue/stream/{id}: a passive SSE subscriber
// over the Queue Store's pub/sub channel. Per the resolved open question in
// SPEC_FULL.md §9 (option b), dispatching is driven entirely by /start; this
// handler never calls scheduler.Manager itself and may attach, detach, and
// reattach without affecting execution.
type StreamHandler struct {
	store  store.Store
	logger *slog.Logger
}

func NewStreamHandler(st store.Store, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{store: st, logger: logger.With("component", "stream_handler")}
}

// Stream handles GET /api/queue/stream/{id}.
func (h *StreamHandler) Stream(c *gin.Context) {
	queueID := c.Param("id")

	queue, err := h.store.LoadQueue(c.Request.Context(), queueID)
	if err != nil {
		h.logger.Error("failed to load queue for stream", "queue_id", queueID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load queue"})
		return
	}
	if queue == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "queue not found"})
		return
	}

	events := make(chan models.TaskQueueEvent, 32)
	unsubscribe, err := h.store.SubscribeToQueue(c.Request.Context(), queueID, func(e models.TaskQueueEvent) {
		select {
		case events <- e:
		default:
			h.logger.Warn("dropping event, subscriber channel full", "queue_id", queueID, "event_type", e.Type)
		}
	})
	if err != nil {
		h.logger.Error("failed to subscribe to queue events", "queue_id", queueID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open event stream"})
		return
	}
	defer unsubscribe()

	sse.SetHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			data, merr := json.Marshal(e.Payload)
			if merr != nil {
				h.logger.Warn("failed to marshal event payload", "queue_id", queueID, "error", merr)
				return true
			}
			if _, werr := w.Write([]byte("event:" + string(e.Type) + "\ndata:" + string(data) + "\n\n")); werr != nil {
				h.logger.Warn("failed to write sse frame, client likely disconnected", "queue_id", queueID, "error", werr)
				return false
			}

			switch e.Type {
			case models.EventQueueCompleted, models.EventQueueFailed:
				return false
			}
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}

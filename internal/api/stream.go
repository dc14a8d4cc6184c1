package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minewatch/pitguard/internal/models"
)

// streamEvents serves the live feed over server-sent events. The
// subscription is primed with a full zones snapshot so the consumer can
// render before the next tick, and keep-alive comments hold proxies open.
func (h *Handler) streamEvents(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	snapshot := models.ZonesEvent(h.store.Zones())
	id, ch := h.broadcaster.Subscribe(snapshot)
	defer h.broadcaster.Unsubscribe(id)

	slog.Info("client subscribed to event stream", "subscriber_id", id)

	c.Writer.WriteString(": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(h.streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			slog.Info("client disconnected from event stream", "subscriber_id", id)
			return
		case <-heartbeat.C:
			c.Writer.WriteString(": heartbeat\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				return
			}
			data, err := models.EncodeEvent(e)
			if err != nil {
				slog.Error("failed to encode stream event", "error", err, "subscriber_id", id)
				continue
			}
			c.Writer.WriteString("data: ")
			c.Writer.Write(data)
			c.Writer.WriteString("\n\n")
			flusher.Flush()
		}
	}
}

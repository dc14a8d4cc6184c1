package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// getEventsCSV exports the filtered compliance log for audits.
func (h *Handler) getEventsCSV(c *gin.Context) {
	events, err := h.events.Query(c.Request.Context(), eventFilter(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="events.csv"`)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"event_id", "timestamp", "zone_id", "workers_alerted", "status", "severity", "supervisor_action"})
	for _, e := range events {
		w.Write([]string{
			e.EventID,
			e.Timestamp.Format(time.RFC3339),
			e.ZoneID,
			strings.Join(e.WorkersAlerted, "|"),
			string(e.Status),
			string(e.Severity),
			e.SupervisorAction,
		})
	}
	w.Flush()
}

// getSensorsCSV exports the device inventory with uptime fractions.
func (h *Handler) getSensorsCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="sensors.csv"`)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"sensor_id", "type", "zone_id", "status", "last_heartbeat", "uptime_pct"})
	for _, s := range h.health.Snapshots() {
		w.Write([]string{
			s.SensorID,
			s.Type,
			s.ZoneID,
			string(s.Status),
			s.LastHeartbeat.Format(time.RFC3339),
			strconv.FormatFloat(s.UptimePct, 'f', 4, 64),
		})
	}
	w.Flush()
}

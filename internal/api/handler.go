package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/minewatch/pitguard/internal/compliance"
	"github.com/minewatch/pitguard/internal/loop"
	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/notify"
	"github.com/minewatch/pitguard/internal/risk"
	"github.com/minewatch/pitguard/internal/sensorhealth"
	"github.com/minewatch/pitguard/internal/state"
	"github.com/minewatch/pitguard/internal/stream"
)

type Handler struct {
	store           *state.Store
	events          compliance.EventLog
	health          *sensorhealth.Tracker
	broadcaster     *stream.Broadcaster
	runner          *loop.Runner
	sink            *notify.SMSSink
	streamHeartbeat time.Duration
}

func NewHandler(store *state.Store, events compliance.EventLog, health *sensorhealth.Tracker, broadcaster *stream.Broadcaster, runner *loop.Runner, sink *notify.SMSSink, streamHeartbeat time.Duration) *Handler {
	return &Handler{
		store:           store,
		events:          events,
		health:          health,
		broadcaster:     broadcaster,
		runner:          runner,
		sink:            sink,
		streamHeartbeat: streamHeartbeat,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	api := r.Group("/api")

	api.POST("/ingest/dem", h.ingestDEM)
	api.POST("/ingest/drone", h.ingestDrone)
	api.POST("/ingest/geotech", h.ingestGeotech)
	api.POST("/ingest/environment", h.ingestEnvironment)
	api.POST("/ingest/worker", h.ingestWorker)

	api.GET("/predict", h.getPredict)
	api.GET("/evacuation-alerts", h.getEvacuationAlerts)
	api.GET("/risk-assessment", h.getRiskAssessment)
	api.GET("/occupancy", h.getOccupancy)
	api.GET("/zones/geojson", h.getZonesGeoJSON)

	api.GET("/alerts", h.getAlerts)
	api.POST("/alerts", h.postAlert)

	api.GET("/events", h.getEvents)
	api.GET("/events/csv", h.getEventsCSV)

	api.GET("/sensors", h.getSensors)
	api.GET("/sensors/stats", h.getSensorStats)
	api.GET("/sensors/csv", h.getSensorsCSV)

	api.GET("/thresholds", h.getThresholds)
	api.POST("/thresholds", h.setThresholds)
	api.POST("/sites", h.createSite)
	api.POST("/drill", h.triggerDrill)

	api.GET("/bootstrap", h.getBootstrap)
	api.GET("/stream", h.streamEvents)
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- ingestion ---

type ingestDEMRequest struct {
	Zones []state.TerrainZone `json:"zones"`
}

func (h *Handler) ingestDEM(c *gin.Context) {
	var req ingestDEMRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Zones) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zones required"})
		return
	}
	for _, z := range req.Zones {
		if z.ID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "zone id required"})
			return
		}
		if len(z.Polygon) < 3 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "zone polygon requires at least 3 points"})
			return
		}
	}

	h.store.ApplyTerrainUpdate(req.Zones)
	h.broadcaster.Publish(models.ZonesEvent(h.store.Zones()))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type ingestDroneRequest struct {
	ZoneID     string  `json:"zoneId"`
	CrackIndex float64 `json:"crackIndex"`
}

func (h *Handler) ingestDrone(c *gin.Context) {
	var req ingestDroneRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ZoneID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoneId required"})
		return
	}

	h.store.ApplyCrackIndex(req.ZoneID, req.CrackIndex)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type ingestGeotechRequest struct {
	Reading models.SensorReading `json:"reading"`
}

func (h *Handler) ingestGeotech(c *gin.Context) {
	var req ingestGeotechRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reading.ZoneID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading.zoneId required"})
		return
	}
	if req.Reading.Timestamp.IsZero() {
		req.Reading.Timestamp = time.Now()
	}

	h.store.ApplySensorReading(req.Reading)
	h.broadcaster.Publish(models.SensorEvent(req.Reading))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type ingestEnvironmentRequest struct {
	ZoneID      string  `json:"zoneId"`
	Rainfall    float64 `json:"rainfall"`
	Temperature float64 `json:"temperature"`
	Vibration   float64 `json:"vibration"`
}

func (h *Handler) ingestEnvironment(c *gin.Context) {
	var req ingestEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ZoneID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoneId required"})
		return
	}

	h.store.ApplyEnvironmental(req.ZoneID, req.Rainfall, req.Temperature, req.Vibration, time.Now())
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type ingestWorkerRequest struct {
	ID       string            `json:"id"`
	Type     models.WorkerType `json:"type"`
	Name     string            `json:"name"`
	Location *models.LatLng    `json:"location"`
}

func (h *Handler) ingestWorker(c *gin.Context) {
	var req ingestWorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" || req.Location == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id & location required"})
		return
	}
	if req.Type == "" {
		req.Type = models.WorkerRFID
	}

	updated := h.store.UpsertWorker(models.WorkerTag{
		ID:       req.ID,
		Name:     req.Name,
		Type:     req.Type,
		Location: *req.Location,
	}, time.Now())
	h.broadcaster.Publish(models.WorkerEvent(updated))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- queries ---

type predictResponse struct {
	risk.Summary
	Prediction models.Prediction `json:"prediction"`
}

func (h *Handler) getPredict(c *gin.Context) {
	view := h.store.View()
	prediction := risk.Predict(view, time.Now())
	c.JSON(http.StatusOK, predictResponse{
		Summary:    risk.Summarize(prediction, view.Sensors),
		Prediction: prediction,
	})
}

func (h *Handler) getEvacuationAlerts(c *gin.Context) {
	view := h.store.View()
	prediction := risk.Predict(view, time.Now())
	c.JSON(http.StatusOK, risk.PersonalizedAlerts(view.Workers, prediction))
}

func (h *Handler) getRiskAssessment(c *gin.Context) {
	view := h.store.View()
	prediction := risk.Predict(view, time.Now())
	c.JSON(http.StatusOK, risk.Assessment(prediction, view.Workers))
}

func (h *Handler) getOccupancy(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Occupancy())
}

func (h *Handler) getAlerts(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": h.store.Alerts(limit)})
}

type postAlertRequest struct {
	Alert   *models.Alert `json:"alert"`
	ToPhone string        `json:"toPhone"`
}

func (h *Handler) postAlert(c *gin.Context) {
	var req postAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Alert == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "alert required"})
		return
	}
	if req.Alert.Timestamp.IsZero() {
		req.Alert.Timestamp = time.Now()
	}

	h.store.AddAlert(*req.Alert)
	h.broadcaster.Publish(models.AlertEvent(*req.Alert))

	// Outbound delivery never blocks or fails the request.
	go h.sink.Send(context.Background(), *req.Alert, req.ToPhone)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) getEvents(c *gin.Context) {
	events, err := h.events.Query(c.Request.Context(), eventFilter(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func eventFilter(c *gin.Context) compliance.Filter {
	f := compliance.Filter{
		Zone:     c.Query("zone"),
		Worker:   c.Query("worker"),
		Status:   models.EventStatus(c.Query("status")),
		Severity: models.RiskLevel(c.Query("severity")),
	}
	if from := c.Query("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			f.From = t
		}
	}
	if to := c.Query("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			f.To = t
		}
	}
	return f
}

func (h *Handler) getSensors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sensors": h.health.Snapshots()})
}

func (h *Handler) getSensorStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Stats())
}

func (h *Handler) getThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Thresholds())
}

// --- commands ---

func (h *Handler) setThresholds(c *gin.Context) {
	var req models.Thresholds
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "high & medium required"})
		return
	}

	if err := h.store.SetThresholds(req); err != nil {
		if errors.Is(err, models.ErrInvalidConfig) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set thresholds"})
		return
	}
	c.JSON(http.StatusOK, h.store.Thresholds())
}

type createSiteRequest struct {
	Name         string   `json:"name"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	RadiusMeters float64  `json:"radiusMeters"`
}

func (h *Handler) createSite(c *gin.Context) {
	var req createSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Lat == nil || req.Lng == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, lat & lng required"})
		return
	}

	zone := h.store.CreateSite(req.Name, *req.Lat, *req.Lng, req.RadiusMeters)
	h.broadcaster.Publish(models.ZonesEvent(h.store.Zones()))
	c.JSON(http.StatusOK, gin.H{"ok": true, "zone": zone})
}

type drillRequest struct {
	ZoneID string `json:"zoneId"`
}

func (h *Handler) triggerDrill(c *gin.Context) {
	var req drillRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ZoneID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoneId required"})
		return
	}

	alert, err := h.runner.TriggerDrill(c.Request.Context(), req.ZoneID, time.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "zone not found: " + req.ZoneID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "drill failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "alert": alert})
}

// --- bootstrap ---

// BootstrapResponse is the full-state snapshot a consumer renders from
// before live events arrive, and re-pulls after a stalled stream.
type BootstrapResponse struct {
	Zones       []models.Zone           `json:"zones"`
	Prediction  models.Prediction       `json:"prediction"`
	Alerts      []models.Alert          `json:"alerts"`
	Sensors     []models.DeviceSnapshot `json:"sensors"`
	SensorStats models.SensorStats      `json:"sensor_stats"`
	Thresholds  models.Thresholds       `json:"thresholds"`
	Occupancy   []models.ZoneOccupancy  `json:"occupancy"`
}

func (h *Handler) getBootstrap(c *gin.Context) {
	view := h.store.View()
	prediction := risk.Predict(view, time.Now())

	c.JSON(http.StatusOK, BootstrapResponse{
		Zones:       view.Zones,
		Prediction:  prediction,
		Alerts:      h.store.Alerts(20),
		Sensors:     h.health.Snapshots(),
		SensorStats: h.health.Stats(),
		Thresholds:  view.Thresholds,
		Occupancy:   h.store.Occupancy(),
	})
}

package client

import (
	"sync"

	"github.com/minewatch/pitguard/internal/api"
	"github.com/minewatch/pitguard/internal/models"
)

// LiveState is the consumer-side materialization of the stream. Zones,
// prediction, occupancy and sensor-health events replace whole state, so
// replaying one is idempotent; the alert feed dedupes on alert id so a
// bootstrap overlapping live events cannot double-append.
type LiveState struct {
	mu sync.RWMutex

	zones      []models.Zone
	prediction models.Prediction
	occupancy  []models.ZoneOccupancy
	health     models.SensorHealth
	sensors    map[string]models.SensorReading
	workers    map[string]models.WorkerTag
	alerts     []models.Alert
	alertSeen  map[string]bool
	thresholds models.Thresholds
}

func NewLiveState() *LiveState {
	return &LiveState{
		sensors:   make(map[string]models.SensorReading),
		workers:   make(map[string]models.WorkerTag),
		alertSeen: make(map[string]bool),
	}
}

// Apply folds one stream event into the state.
func (s *LiveState) Apply(e models.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch v := e.(type) {
	case models.ZonesEvent:
		s.zones = append([]models.Zone(nil), v...)
	case models.PredictionEvent:
		s.prediction = models.Prediction(v)
	case models.OccupancyEvent:
		s.occupancy = append([]models.ZoneOccupancy(nil), v...)
	case models.SensorHealthEvent:
		s.health = models.SensorHealth(v)
	case models.SensorEvent:
		s.sensors[v.ZoneID] = models.SensorReading(v)
	case models.WorkerEvent:
		s.workers[v.ID] = models.WorkerTag(v)
	case models.AlertEvent:
		s.appendAlertLocked(models.Alert(v))
	}
}

// ApplyBootstrap folds a full snapshot into the state, replacing the
// replace-whole-state views and merging the alert feed.
func (s *LiveState) ApplyBootstrap(b api.BootstrapResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.zones = append([]models.Zone(nil), b.Zones...)
	s.prediction = b.Prediction
	s.occupancy = append([]models.ZoneOccupancy(nil), b.Occupancy...)
	s.health = models.SensorHealth{Sensors: b.Sensors, Stats: b.SensorStats}
	s.thresholds = b.Thresholds
	for _, a := range b.Alerts {
		s.appendAlertLocked(a)
	}
}

func (s *LiveState) appendAlertLocked(a models.Alert) {
	if s.alertSeen[a.ID] {
		return
	}
	s.alertSeen[a.ID] = true
	s.alerts = append([]models.Alert{a}, s.alerts...)
}

func (s *LiveState) Zones() []models.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Zone(nil), s.zones...)
}

func (s *LiveState) Prediction() models.Prediction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prediction
}

func (s *LiveState) Occupancy() []models.ZoneOccupancy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ZoneOccupancy(nil), s.occupancy...)
}

func (s *LiveState) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Alert(nil), s.alerts...)
}

func (s *LiveState) Health() models.SensorHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

func (s *LiveState) Worker(id string) (models.WorkerTag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	return w, ok
}

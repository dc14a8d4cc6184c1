// Package state owns the authoritative in-memory model of one mine site:
// zones, terrain inputs, latest sensor readings, exits, workers, alerts
// and classification thresholds. All access goes through Store's API; a
// reader never observes a half-applied update.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/minewatch/pitguard/internal/geo"
	"github.com/minewatch/pitguard/internal/models"
)

// metersPerDegree approximates one degree of latitude near the site.
const metersPerDegree = 111320.0

// TerrainZone is one zone row of a DEM ingestion payload.
type TerrainZone struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Polygon []models.LatLng `json:"polygon"`
	Slope   float64         `json:"slope"`
}

type Store struct {
	mu sync.RWMutex

	zones         []models.Zone
	zoneSlope     map[string]float64
	crackIndex    map[string]float64
	latestSensors map[string]models.SensorReading
	safeExits     []models.SafeExit
	workers       map[string]models.WorkerTag
	workerOrder   []string
	alerts        []models.Alert
	thresholds    models.Thresholds
	siteSeq       int
}

func NewStore(thresholds models.Thresholds) *Store {
	if !thresholds.Valid() {
		thresholds = models.Thresholds{Medium: 0.4, High: 0.7}
	}
	return &Store{
		zoneSlope:     make(map[string]float64),
		crackIndex:    make(map[string]float64),
		latestSensors: make(map[string]models.SensorReading),
		workers:       make(map[string]models.WorkerTag),
		thresholds:    thresholds,
	}
}

// Seed populates the default site. It is idempotent: a store that already
// has zones is left untouched.
func (s *Store) Seed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.zones) > 0 {
		return
	}

	s.zones = []models.Zone{
		{
			ID:   "z1",
			Name: "North Slope",
			Polygon: []models.LatLng{
				{Lat: -24.6, Lng: 135.1},
				{Lat: -24.61, Lng: 135.12},
				{Lat: -24.62, Lng: 135.09},
				{Lat: -24.6, Lng: 135.08},
			},
			Probability:        0.1,
			Risk:               models.RiskLow,
			RecommendedActions: ActionsForRisk(models.RiskLow),
		},
		{
			ID:   "z2",
			Name: "East Ramp",
			Polygon: []models.LatLng{
				{Lat: -24.605, Lng: 135.13},
				{Lat: -24.615, Lng: 135.14},
				{Lat: -24.625, Lng: 135.12},
				{Lat: -24.61, Lng: 135.11},
			},
			Probability:        0.2,
			Risk:               models.RiskLow,
			RecommendedActions: ActionsForRisk(models.RiskLow),
		},
		{
			ID:   "z3",
			Name: "Haul Road Cut",
			Polygon: []models.LatLng{
				{Lat: -24.59, Lng: 135.11},
				{Lat: -24.6, Lng: 135.15},
				{Lat: -24.61, Lng: 135.14},
				{Lat: -24.6, Lng: 135.1},
			},
			Probability:        0.15,
			Risk:               models.RiskLow,
			RecommendedActions: ActionsForRisk(models.RiskLow),
		},
	}
	s.zoneSlope = map[string]float64{"z1": 38, "z2": 32, "z3": 28}
	s.crackIndex = map[string]float64{"z1": 0.2, "z2": 0.15, "z3": 0.1}
	s.safeExits = []models.SafeExit{
		{ID: "e1", Name: "Muster Point A", Type: models.ExitMuster, Location: models.LatLng{Lat: -24.595, Lng: 135.105}},
		{ID: "e2", Name: "Muster Point B", Type: models.ExitMuster, Location: models.LatLng{Lat: -24.615, Lng: 135.145}},
		{ID: "e3", Name: "South Gate", Type: models.ExitGate, Location: models.LatLng{Lat: -24.625, Lng: 135.085}},
	}
	seedWorkers := []models.WorkerTag{
		{ID: "w1", Name: "Crew A-1", Type: models.WorkerRFID, LastSeen: now, Location: models.LatLng{Lat: -24.603, Lng: 135.119}},
		{ID: "w2", Name: "Crew A-2", Type: models.WorkerRFID, LastSeen: now, Location: models.LatLng{Lat: -24.61, Lng: 135.13}},
		{ID: "w3", Name: "Surveyor B", Type: models.WorkerBLE, LastSeen: now, Location: models.LatLng{Lat: -24.6, Lng: 135.112}},
	}
	for _, w := range seedWorkers {
		s.workers[w.ID] = w
		s.workerOrder = append(s.workerOrder, w.ID)
	}
	s.resolveWorkerZonesLocked()
}

// ApplyTerrainUpdate upserts zone geometry and slope by id. Probability
// and risk stay untouched; the next prediction cycle recomputes them.
// Changed polygons re-resolve every worker's zone.
func (s *Store) ApplyTerrainUpdate(zones []TerrainZone) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tz := range zones {
		s.zoneSlope[tz.ID] = tz.Slope
		if i := s.zoneIndexLocked(tz.ID); i >= 0 {
			s.zones[i].Name = tz.Name
			s.zones[i].Polygon = append([]models.LatLng(nil), tz.Polygon...)
		} else {
			s.zones = append(s.zones, models.Zone{
				ID:                 tz.ID,
				Name:               tz.Name,
				Polygon:            append([]models.LatLng(nil), tz.Polygon...),
				Probability:        0,
				Risk:               models.RiskLow,
				RecommendedActions: ActionsForRisk(models.RiskLow),
			})
		}
	}
	s.resolveWorkerZonesLocked()
}

// ApplyCrackIndex upserts a zone's crack index, clamped to [0, 1].
func (s *Store) ApplyCrackIndex(zoneID string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crackIndex[zoneID] = clamp01(value)
}

// ApplySensorReading overwrites the latest reading for the zone.
func (s *Store) ApplySensorReading(r models.SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestSensors[r.ZoneID] = r
}

// ApplyEnvironmental merges rainfall, temperature and vibration into the
// zone's latest reading. Displacement, strain and pore pressure carry
// over from the prior reading, or from a default baseline if none exists.
func (s *Store) ApplyEnvironmental(zoneID string, rainfall, temperature, vibration float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.latestSensors[zoneID]
	if !ok {
		last = models.SensorReading{
			Timestamp:    now,
			ZoneID:       zoneID,
			Displacement: 1,
			Strain:       20,
			PorePressure: 10,
			Rainfall:     0,
			Temperature:  20,
			Vibration:    0.2,
		}
	}
	last.Rainfall = rainfall
	last.Temperature = temperature
	last.Vibration = vibration
	s.latestSensors[zoneID] = last
}

// UpsertWorker merges the tag into the store, stamps LastSeen and
// re-resolves every worker's zone against current polygons.
func (s *Store) UpsertWorker(tag models.WorkerTag, now time.Time) models.WorkerTag {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workers[tag.ID]
	if !ok {
		s.workerOrder = append(s.workerOrder, tag.ID)
		existing = models.WorkerTag{ID: tag.ID}
	}
	if tag.Name != "" {
		existing.Name = tag.Name
	}
	if tag.Type != "" {
		existing.Type = tag.Type
	}
	existing.Location = tag.Location
	existing.LastSeen = now
	s.workers[tag.ID] = existing

	s.resolveWorkerZonesLocked()
	return s.workers[tag.ID]
}

// SetThresholds atomically replaces the classification thresholds.
// A reader sees either the old pair or the new pair, never a mix.
func (s *Store) SetThresholds(t models.Thresholds) error {
	if !t.Valid() {
		return fmt.Errorf("%w: thresholds must satisfy 0 < medium < high < 1", models.ErrInvalidConfig)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = t
	return nil
}

func (s *Store) Thresholds() models.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// CreateSite appends a new zone: a square of half-width radiusMeters
// (default 60 m) centered on the point, starting at probability 0.05.
func (s *Store) CreateSite(name string, lat, lng, radiusMeters float64) models.Zone {
	s.mu.Lock()
	defer s.mu.Unlock()

	if radiusMeters <= 0 {
		radiusMeters = 60
	}
	d := radiusMeters / metersPerDegree

	s.siteSeq++
	id := fmt.Sprintf("site-%d-%d", time.Now().UnixMilli(), s.siteSeq)

	zone := models.Zone{
		ID:   id,
		Name: name,
		Polygon: []models.LatLng{
			{Lat: lat - d, Lng: lng - d},
			{Lat: lat - d, Lng: lng + d},
			{Lat: lat + d, Lng: lng + d},
			{Lat: lat + d, Lng: lng - d},
		},
		Probability:        0.05,
		Risk:               models.RiskLow,
		RecommendedActions: ActionsForRisk(models.RiskLow),
	}
	s.zones = append(s.zones, zone)
	s.resolveWorkerZonesLocked()
	return zone
}

// HasZone reports whether a zone with the given id exists.
func (s *Store) HasZone(zoneID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoneIndexLocked(zoneID) >= 0
}

// Zones returns a copy of the current zone list.
func (s *Store) Zones() []models.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyZonesLocked(s.zones)
}

func (s *Store) SafeExits() []models.SafeExit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SafeExit(nil), s.safeExits...)
}

// Workers returns the tags in stable insertion order.
func (s *Store) Workers() []models.WorkerTag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workersLocked()
}

// AddAlert prepends an alert to the feed (most-recent-first).
func (s *Store) AddAlert(a models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append([]models.Alert{a}, s.alerts...)
}

// Alerts returns up to limit recent alerts, newest first. limit <= 0
// returns everything.
func (s *Store) Alerts(limit int) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]models.Alert(nil), s.alerts[:n]...)
}

// HasRecentAlert reports whether the zone alerted at the given level
// since the cutoff. The loop uses it as its throttle check.
func (s *Store) HasRecentAlert(zoneID string, level models.RiskLevel, cutoff time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.alerts {
		if a.ZoneID == zoneID && a.Level == level && a.Timestamp.After(cutoff) {
			return true
		}
	}
	return false
}

// View captures one consistent snapshot of everything the risk engine
// reads. All derived views published in a tick come from a single View.
type View struct {
	Zones      []models.Zone
	Slope      map[string]float64
	Crack      map[string]float64
	Sensors    map[string]models.SensorReading
	Exits      []models.SafeExit
	Workers    []models.WorkerTag
	Thresholds models.Thresholds
}

func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slope := make(map[string]float64, len(s.zoneSlope))
	for k, v := range s.zoneSlope {
		slope[k] = v
	}
	crack := make(map[string]float64, len(s.crackIndex))
	for k, v := range s.crackIndex {
		crack[k] = v
	}
	sensors := make(map[string]models.SensorReading, len(s.latestSensors))
	for k, v := range s.latestSensors {
		sensors[k] = v
	}

	return View{
		Zones:      copyZonesLocked(s.zones),
		Slope:      slope,
		Crack:      crack,
		Sensors:    sensors,
		Exits:      append([]models.SafeExit(nil), s.safeExits...),
		Workers:    s.workersLocked(),
		Thresholds: s.thresholds,
	}
}

// ApplyPrediction writes classified probabilities, risks and actions back
// to the zone list so queries observe the latest cycle.
func (s *Store) ApplyPrediction(p models.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pz := range p.Zones {
		if i := s.zoneIndexLocked(pz.ID); i >= 0 {
			s.zones[i].Probability = pz.Probability
			s.zones[i].Risk = pz.Risk
			s.zones[i].RecommendedActions = append([]string(nil), pz.RecommendedActions...)
		}
	}
}

// Occupancy aggregates worker counts per zone. Every zone gets an entry,
// zero-count included; workers outside all zones appear nowhere.
func (s *Store) Occupancy() []models.ZoneOccupancy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byZone := make(map[string]*models.ZoneOccupancy, len(s.zones))
	out := make([]models.ZoneOccupancy, len(s.zones))
	for i, z := range s.zones {
		out[i] = models.ZoneOccupancy{ZoneID: z.ID, ZoneName: z.Name, Count: 0, Workers: []models.WorkerRef{}}
		byZone[z.ID] = &out[i]
	}
	for _, id := range s.workerOrder {
		w := s.workers[id]
		if w.ZoneID == "" {
			continue
		}
		if occ, ok := byZone[w.ZoneID]; ok {
			occ.Count++
			occ.Workers = append(occ.Workers, models.WorkerRef{ID: w.ID, Name: w.Name, Type: w.Type})
		}
	}
	return out
}

// WorkersInZone snapshots the ids of workers currently resolved to a zone.
func (s *Store) WorkersInZone(zoneID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, id := range s.workerOrder {
		if s.workers[id].ZoneID == zoneID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Store) zoneIndexLocked(zoneID string) int {
	for i := range s.zones {
		if s.zones[i].ID == zoneID {
			return i
		}
	}
	return -1
}

func (s *Store) workersLocked() []models.WorkerTag {
	out := make([]models.WorkerTag, 0, len(s.workerOrder))
	for _, id := range s.workerOrder {
		out = append(out, s.workers[id])
	}
	return out
}

func (s *Store) resolveWorkerZonesLocked() {
	for id, w := range s.workers {
		w.ZoneID = ""
		for _, z := range s.zones {
			if geo.PointInPolygon(w.Location, z.Polygon) {
				w.ZoneID = z.ID
				break
			}
		}
		s.workers[id] = w
	}
}

func copyZonesLocked(zones []models.Zone) []models.Zone {
	out := make([]models.Zone, len(zones))
	for i, z := range zones {
		z.Polygon = append([]models.LatLng(nil), z.Polygon...)
		z.RecommendedActions = append([]string(nil), z.RecommendedActions...)
		out[i] = z
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ActionsForRisk is the fixed, ordered action list per risk level.
func ActionsForRisk(risk models.RiskLevel) []string {
	switch risk {
	case models.RiskHigh:
		return []string{
			"Evacuate personnel from affected zone",
			"Establish exclusion barriers",
			"Deploy spotters and drones",
			"Schedule immediate geotech inspection",
		}
	case models.RiskMedium:
		return []string{
			"Increase monitoring frequency",
			"Reduce equipment speeds",
			"Inspect drainage and catch berms",
		}
	default:
		return []string{"Routine inspection"}
	}
}

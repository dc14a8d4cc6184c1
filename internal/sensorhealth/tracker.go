// Package sensorhealth tracks per-device heartbeat recency, status and
// cumulative uptime for the site's monitoring hardware.
package sensorhealth

import (
	"sync"
	"time"

	"github.com/minewatch/pitguard/internal/models"
)

// Transition records a device status change, so the update loop can turn
// fault/recovery edges into alerts.
type Transition struct {
	SensorID string
	ZoneID   string
	From     models.DeviceStatus
	To       models.DeviceStatus
}

type Tracker struct {
	mu          sync.RWMutex
	devices     map[string]*models.SensorDevice
	order       []string
	gracePeriod time.Duration
}

func NewTracker(gracePeriod time.Duration) *Tracker {
	return &Tracker{
		devices:     make(map[string]*models.SensorDevice),
		gracePeriod: gracePeriod,
	}
}

// Seed registers the default device fleet. Idempotent like the store seed.
func (t *Tracker) Seed(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.order) > 0 {
		return
	}
	seed := []models.SensorDevice{
		{SensorID: "s1", Type: "doppler_radar", ZoneID: "z1", Status: models.DeviceActive, LastHeartbeat: now},
		{SensorID: "s2", Type: "piezometer", ZoneID: "z2", Status: models.DeviceActive, LastHeartbeat: now},
		{SensorID: "s3", Type: "geophone", ZoneID: "z3", Status: models.DeviceActive, LastHeartbeat: now},
		{SensorID: "s4", Type: "rain_gauge", ZoneID: "z1", Status: models.DeviceActive, LastHeartbeat: now},
	}
	for i := range seed {
		d := seed[i]
		t.devices[d.SensorID] = &d
		t.order = append(t.order, d.SensorID)
	}
}

// Register adds a device if it is not already tracked.
func (t *Tracker) Register(device models.SensorDevice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.devices[device.SensorID]; ok {
		return
	}
	if device.Status == "" {
		device.Status = models.DeviceActive
	}
	t.devices[device.SensorID] = &device
	t.order = append(t.order, device.SensorID)
}

// Heartbeat accounts elapsed wall time to the device and refreshes its
// recency. Active time accrues only while the device was Active. A
// heartbeat restores Faulty and Inactive devices to Active; Maintenance
// holds until cleared explicitly.
func (t *Tracker) Heartbeat(sensorID string, elapsed time.Duration, now time.Time) (*Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[sensorID]
	if !ok {
		return nil, models.ErrNotFound
	}

	d.TotalMs += elapsed.Milliseconds()
	if d.Status == models.DeviceActive {
		d.ActiveMs += elapsed.Milliseconds()
	}
	d.LastHeartbeat = now

	if d.Status == models.DeviceFaulty || d.Status == models.DeviceInactive {
		tr := &Transition{SensorID: d.SensorID, ZoneID: d.ZoneID, From: d.Status, To: models.DeviceActive}
		d.Status = models.DeviceActive
		return tr, nil
	}
	return nil, nil
}

// InjectFault forces a device to Faulty.
func (t *Tracker) InjectFault(sensorID string) (*Transition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.devices[sensorID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if d.Status == models.DeviceFaulty {
		return nil, nil
	}
	tr := &Transition{SensorID: d.SensorID, ZoneID: d.ZoneID, From: d.Status, To: models.DeviceFaulty}
	d.Status = models.DeviceFaulty
	return tr, nil
}

// CheckTimeouts moves Active devices whose last heartbeat is older than
// the grace period to Inactive.
func (t *Tracker) CheckTimeouts(now time.Time) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	for _, id := range t.order {
		d := t.devices[id]
		if d.Status == models.DeviceActive && now.Sub(d.LastHeartbeat) > t.gracePeriod {
			out = append(out, Transition{SensorID: d.SensorID, ZoneID: d.ZoneID, From: d.Status, To: models.DeviceInactive})
			d.Status = models.DeviceInactive
		}
	}
	return out
}

// Snapshots returns the device views in registration order.
func (t *Tracker) Snapshots() []models.DeviceSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.DeviceSnapshot, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, snapshot(t.devices[id]))
	}
	return out
}

// Stats aggregates the fleet: counts by status and mean uptime fraction.
func (t *Tracker) Stats() models.SensorStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := models.SensorStats{
		Total:    len(t.order),
		ByStatus: make(map[models.DeviceStatus]int),
	}
	var uptimeSum float64
	for _, id := range t.order {
		d := t.devices[id]
		stats.ByStatus[d.Status]++
		uptimeSum += uptime(d)
	}
	if stats.Total > 0 {
		stats.AverageUptime = uptimeSum / float64(stats.Total)
	}
	return stats
}

// Health bundles snapshots and stats into the stream payload.
func (t *Tracker) Health() models.SensorHealth {
	return models.SensorHealth{
		Sensors: t.Snapshots(),
		Stats:   t.Stats(),
	}
}

func snapshot(d *models.SensorDevice) models.DeviceSnapshot {
	return models.DeviceSnapshot{
		SensorID:      d.SensorID,
		Type:          d.Type,
		ZoneID:        d.ZoneID,
		Status:        d.Status,
		LastHeartbeat: d.LastHeartbeat,
		UptimePct:     uptime(d),
	}
}

func uptime(d *models.SensorDevice) float64 {
	if d.TotalMs == 0 {
		return 0
	}
	return float64(d.ActiveMs) / float64(d.TotalMs)
}

// Package loop drives the periodic update cycle: synthesize or accept
// telemetry, recompute predictions and occupancy, evaluate alert and
// resolution conditions, advance sensor health, and publish the tick's
// state deltas in a fixed order.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/minewatch/pitguard/internal/compliance"
	"github.com/minewatch/pitguard/internal/config"
	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/risk"
	"github.com/minewatch/pitguard/internal/sensorhealth"
	"github.com/minewatch/pitguard/internal/state"
	"github.com/minewatch/pitguard/internal/stream"
)

type Runner struct {
	cfg    config.LoopConfig
	sim    bool
	store  *state.Store
	events compliance.EventLog
	health *sensorhealth.Tracker
	bc     *stream.Broadcaster
	logger *slog.Logger

	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	stopped       chan struct{}
	deviceAlertAt map[string]time.Time
	rng           *rand.Rand
}

func NewRunner(cfg config.LoopConfig, sim bool, store *state.Store, events compliance.EventLog, health *sensorhealth.Tracker, bc *stream.Broadcaster, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:           cfg,
		sim:           sim,
		store:         store,
		events:        events,
		health:        health,
		bc:            bc,
		logger:        logger,
		deviceAlertAt: make(map[string]time.Time),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// EnsureStarted starts the ticker goroutine if it is not already running.
// The broadcaster calls this on every subscribe, so the loop comes up
// lazily with the first consumer.
func (r *Runner) EnsureStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.stopped = make(chan struct{})
	go r.run(r.stopCh, r.stopped)
	r.logger.Info("update loop started", "interval", r.cfg.TickInterval)
}

// Stop halts the ticker goroutine and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, stopped := r.stopCh, r.stopped
	r.mu.Unlock()

	close(stopCh)
	<-stopped
}

func (r *Runner) run(stopCh, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			r.logger.Info("update loop stopped")
			return
		case now := <-ticker.C:
			r.Tick(now)

			// No one listening: shut the timer down and let the next
			// subscribe restart it. The count is re-checked under the
			// lock: a Subscribe landing after the first check runs its
			// EnsureStarted hook against running == true and no-ops, so
			// parking on the stale count would strand that subscriber.
			if r.bc.SubscriberCount() == 0 {
				r.mu.Lock()
				if r.running && r.stopCh == stopCh && r.bc.SubscriberCount() == 0 {
					r.running = false
					r.mu.Unlock()
					r.logger.Info("update loop idle, stopping")
					return
				}
				r.mu.Unlock()
			}
		}
	}
}

// Tick runs one full update cycle. A failure inside a tick is logged and
// absorbed; the next interval proceeds normally.
func (r *Runner) Tick(now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tick failed", "panic", fmt.Sprint(rec))
		}
	}()

	ctx := context.Background()

	// 1. One sensor reading per zone.
	if r.sim {
		for _, reading := range r.simulateReadings(now) {
			r.store.ApplySensorReading(reading)
			r.bc.Publish(models.SensorEvent(reading))
		}
		r.simulateDeviceHeartbeats(now)
	}

	// 2. Prediction over one consistent view.
	view := r.store.View()
	prediction := risk.Predict(view, now)
	r.store.ApplyPrediction(prediction)
	r.bc.Publish(models.PredictionEvent(prediction))

	// 3. Worker positions and occupancy.
	if r.sim {
		for _, w := range r.store.Workers() {
			w.Location.Lat += r.randRange(-0.0005, 0.0005)
			w.Location.Lng += r.randRange(-0.0005, 0.0005)
			updated := r.store.UpsertWorker(w, now)
			r.bc.Publish(models.WorkerEvent(updated))
		}
	}
	r.bc.Publish(models.OccupancyEvent(r.store.Occupancy()))

	// 4. Zone alerts and resolutions.
	for _, z := range prediction.Zones {
		if z.Risk == models.RiskHigh {
			cutoff := now.Add(-r.cfg.AlertCooldown)
			if r.store.HasRecentAlert(z.ID, models.RiskHigh, cutoff) {
				continue
			}
			alert := models.Alert{
				ID:        uuid.NewString(),
				ZoneID:    z.ID,
				Level:     models.RiskHigh,
				Message:   fmt.Sprintf("%s: High rockfall risk (%.1f%%)", z.Name, z.Probability*100),
				Actions:   z.RecommendedActions,
				Timestamp: now,
			}
			r.emitAlert(ctx, alert, true)
			continue
		}

		if _, err := r.events.ResolveZone(ctx, z.ID, now); err != nil {
			r.logger.Error("error resolving compliance event", "zone_id", z.ID, "error", err)
		}
	}

	// 5. Sensor health: timeouts plus any simulated transitions above.
	for _, tr := range r.health.CheckTimeouts(now) {
		r.deviceTransitionAlert(ctx, tr, now)
	}

	// 6. Health snapshot closes out the tick.
	r.bc.Publish(models.SensorHealthEvent(r.health.Health()))
}

// TriggerDrill forces a zone to high risk via a crack-index override and
// emits a synthetic high alert with a compliance record, so evacuation
// handling can be exercised end to end.
func (r *Runner) TriggerDrill(ctx context.Context, zoneID string, now time.Time) (models.Alert, error) {
	var zone *models.Zone
	for _, z := range r.store.Zones() {
		if z.ID == zoneID {
			zz := z
			zone = &zz
			break
		}
	}
	if zone == nil {
		return models.Alert{}, fmt.Errorf("zone %s: %w", zoneID, models.ErrNotFound)
	}

	r.store.ApplyCrackIndex(zoneID, 0.95)

	alert := models.Alert{
		ID:        uuid.NewString(),
		ZoneID:    zoneID,
		Level:     models.RiskHigh,
		Message:   fmt.Sprintf("%s: High rockfall risk (drill)", zone.Name),
		Actions:   state.ActionsForRisk(models.RiskHigh),
		Timestamp: now,
	}
	r.emitAlert(ctx, alert, true)
	return alert, nil
}

// emitAlert appends the alert to the feed, broadcasts it and, when asked,
// writes the compliance record with the zone's current occupants.
func (r *Runner) emitAlert(ctx context.Context, alert models.Alert, logCompliance bool) {
	r.store.AddAlert(alert)
	r.bc.Publish(models.AlertEvent(alert))

	if !logCompliance {
		return
	}
	workers := r.store.WorkersInZone(alert.ZoneID)
	if _, err := r.events.LogAlert(ctx, alert, workers); err != nil {
		r.logger.Error("error logging compliance event", "zone_id", alert.ZoneID, "error", err)
	}
}

func (r *Runner) deviceTransitionAlert(ctx context.Context, tr sensorhealth.Transition, now time.Time) {
	if last, ok := r.deviceAlertAt[tr.SensorID]; ok && now.Sub(last) < r.cfg.DeviceFaultCooldown {
		return
	}
	r.deviceAlertAt[tr.SensorID] = now

	level := models.RiskMedium
	verb := "fault detected"
	if tr.To == models.DeviceActive {
		level = models.RiskLow
		verb = "recovered"
	} else if tr.To == models.DeviceInactive {
		verb = "stopped reporting"
	}

	alert := models.Alert{
		ID:        uuid.NewString(),
		ZoneID:    tr.ZoneID,
		Level:     level,
		Message:   fmt.Sprintf("Sensor %s %s", tr.SensorID, verb),
		Actions:   []string{"Dispatch technician", "Verify zone coverage"},
		Timestamp: now,
	}
	r.emitAlert(ctx, alert, false)
}

// simulateReadings random-walks each zone's latest reading.
func (r *Runner) simulateReadings(now time.Time) []models.SensorReading {
	view := r.store.View()

	readings := make([]models.SensorReading, 0, len(view.Zones))
	for _, z := range view.Zones {
		last, ok := view.Sensors[z.ID]
		if !ok {
			last = models.SensorReading{Displacement: 1, Strain: 50}
		}
		readings = append(readings, models.SensorReading{
			Timestamp:    now,
			ZoneID:       z.ID,
			Displacement: max0(last.Displacement + r.randRange(-0.3, 0.8)),
			Strain:       max0(last.Strain + r.randRange(-3, 4)),
			PorePressure: max0(last.PorePressure + r.randRange(-2, 5)),
			Rainfall:     max0(r.randRange(0, 5)),
			Temperature:  20 + r.randRange(-0.5, 0.5),
			Vibration:    max0(r.randRange(0.2, 0.6)),
		})
	}
	return readings
}

// simulateDeviceHeartbeats drives the health tracker when no real fleet
// is connected: every device heartbeats each tick, with a small injected
// fault chance, and faulty devices eventually recover on heartbeat.
func (r *Runner) simulateDeviceHeartbeats(now time.Time) {
	ctx := context.Background()
	for _, d := range r.health.Snapshots() {
		switch d.Status {
		case models.DeviceFaulty:
			// Recovery is not immediate.
			if r.rng.Float64() < 0.3 {
				if tr, err := r.health.Heartbeat(d.SensorID, r.cfg.TickInterval, now); err == nil && tr != nil {
					r.deviceTransitionAlert(ctx, *tr, now)
				}
			}
		case models.DeviceMaintenance:
			// Held out of service.
		default:
			if r.rng.Float64() < 0.02 {
				if tr, err := r.health.InjectFault(d.SensorID); err == nil && tr != nil {
					r.deviceTransitionAlert(ctx, *tr, now)
				}
				continue
			}
			if tr, err := r.health.Heartbeat(d.SensorID, r.cfg.TickInterval, now); err == nil && tr != nil {
				r.deviceTransitionAlert(ctx, *tr, now)
			}
		}
	}
}

// randRange draws from [min, max). The rng is confined to the tick
// goroutine, so no locking is needed.
func (r *Runner) randRange(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

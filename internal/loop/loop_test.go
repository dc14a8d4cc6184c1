package loop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/minewatch/pitguard/internal/compliance"
	"github.com/minewatch/pitguard/internal/config"
	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/sensorhealth"
	"github.com/minewatch/pitguard/internal/state"
	"github.com/minewatch/pitguard/internal/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	runner *Runner
	store  *state.Store
	events *compliance.MemoryLog
	health *sensorhealth.Tracker
	bc     *stream.Broadcaster
}

func newFixture(t *testing.T, sim bool) *fixture {
	t.Helper()

	cfg := config.LoopConfig{
		TickInterval:        20 * time.Millisecond,
		AlertCooldown:       60 * time.Second,
		DeviceGracePeriod:   30 * time.Second,
		DeviceFaultCooldown: 5 * time.Minute,
	}
	store := state.NewStore(models.Thresholds{Medium: 0.4, High: 0.7})
	store.Seed(testStart)
	health := sensorhealth.NewTracker(cfg.DeviceGracePeriod)
	health.Seed(testStart)
	events := compliance.NewMemoryLog()
	bc := stream.NewBroadcaster()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		runner: NewRunner(cfg, sim, store, events, health, bc, logger),
		store:  store,
		events: events,
		health: health,
		bc:     bc,
	}
}

func highAlerts(alerts []models.Alert, zoneID string) int {
	n := 0
	for _, a := range alerts {
		if a.ZoneID == zoneID && a.Level == models.RiskHigh {
			n++
		}
	}
	return n
}

func TestTick_EmitsHighAlertAndComplianceRecord(t *testing.T) {
	f := newFixture(t, false)

	// Device heartbeats are still fresh at the seed time, so the only
	// alert in this tick is the zone alert.
	f.runner.Tick(testStart)

	// The seeded North Slope classifies high; the medium zones do not alert.
	alerts := f.store.Alerts(0)
	if highAlerts(alerts, "z1") != 1 {
		t.Fatalf("expected one z1 high alert, got %d (total %d)", highAlerts(alerts, "z1"), len(alerts))
	}
	if highAlerts(alerts, "z2")+highAlerts(alerts, "z3") != 0 {
		t.Errorf("medium zones must not alert")
	}
	if !strings.Contains(alerts[0].Message, "North Slope: High rockfall risk") {
		t.Errorf("unexpected alert message: %s", alerts[0].Message)
	}

	events, _ := f.events.Query(context.Background(), compliance.Filter{Zone: "z1"})
	if len(events) != 1 {
		t.Fatalf("expected one compliance record, got %d", len(events))
	}
	if events[0].Status != models.StatusOngoing {
		t.Errorf("expected Ongoing, got %s", events[0].Status)
	}
}

func TestTick_AlertCooldownThrottles(t *testing.T) {
	f := newFixture(t, false)

	f.runner.Tick(testStart)
	f.runner.Tick(testStart.Add(4 * time.Second))
	f.runner.Tick(testStart.Add(30 * time.Second))
	if n := highAlerts(f.store.Alerts(0), "z1"); n != 1 {
		t.Fatalf("expected the cooldown to hold one alert, got %d", n)
	}

	f.runner.Tick(testStart.Add(2 * time.Minute))
	if n := highAlerts(f.store.Alerts(0), "z1"); n != 2 {
		t.Errorf("expected a fresh alert after the cooldown, got %d", n)
	}
}

func TestTick_ResolvesOnDeescalation(t *testing.T) {
	f := newFixture(t, false)

	f.runner.Tick(testStart)

	// Raising the thresholds drops every zone below high.
	if err := f.store.SetThresholds(models.Thresholds{Medium: 0.85, High: 0.9}); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	f.runner.Tick(testStart.Add(10 * time.Second))

	events, _ := f.events.Query(context.Background(), compliance.Filter{Zone: "z1"})
	if len(events) != 2 {
		t.Fatalf("expected original plus resolved shadow, got %d", len(events))
	}
	if events[0].Status != models.StatusResolved || events[1].Status != models.StatusOngoing {
		t.Errorf("unexpected statuses: %s, %s", events[0].Status, events[1].Status)
	}

	// Staying calm adds nothing further.
	f.runner.Tick(testStart.Add(20 * time.Second))
	events, _ = f.events.Query(context.Background(), compliance.Filter{Zone: "z1"})
	if len(events) != 2 {
		t.Errorf("expected repeated resolution to be a no-op, got %d records", len(events))
	}
}

func TestTick_PublishOrder(t *testing.T) {
	f := newFixture(t, false)

	id, ch := f.bc.Subscribe()
	defer f.bc.Unsubscribe(id)

	f.runner.Tick(testStart)

	var kinds []models.EventKind
	for len(ch) > 0 {
		kinds = append(kinds, (<-ch).Kind())
	}

	want := []models.EventKind{
		models.EventPrediction,
		models.EventOccupancy,
		models.EventAlert,
		models.EventSensorHealth,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestTick_DeviceTimeoutAlerts(t *testing.T) {
	f := newFixture(t, false)

	// One tick well past the heartbeat grace: every seeded device stops
	// reporting.
	f.runner.Tick(testStart.Add(2 * time.Minute))

	deviceAlerts := 0
	for _, a := range f.store.Alerts(0) {
		if strings.Contains(a.Message, "stopped reporting") {
			deviceAlerts++
			if a.Level != models.RiskMedium {
				t.Errorf("expected medium severity, got %s", a.Level)
			}
		}
	}
	if deviceAlerts != 4 {
		t.Fatalf("expected 4 device alerts, got %d", deviceAlerts)
	}

	// Device alerts do not enter the compliance ledger; only the z1 risk
	// alert from the same tick does.
	events, _ := f.events.Query(context.Background(), compliance.Filter{})
	if len(events) != 1 || events[0].ZoneID != "z1" {
		t.Errorf("expected only the zone alert in the ledger, got %d records", len(events))
	}

	// Inactive devices do not re-fire on the next tick.
	f.runner.Tick(testStart.Add(2*time.Minute + 10*time.Second))
	after := 0
	for _, a := range f.store.Alerts(0) {
		if strings.Contains(a.Message, "stopped reporting") {
			after++
		}
	}
	if after != 4 {
		t.Errorf("expected no repeated device alerts, got %d", after)
	}
}

func TestTick_SimulationPopulatesSensors(t *testing.T) {
	f := newFixture(t, true)

	f.runner.Tick(testStart)

	view := f.store.View()
	for _, zoneID := range []string{"z1", "z2", "z3"} {
		r, ok := view.Sensors[zoneID]
		if !ok {
			t.Fatalf("expected a simulated reading for %s", zoneID)
		}
		if r.ZoneID != zoneID || !r.Timestamp.Equal(testStart) {
			t.Errorf("unexpected reading: %+v", r)
		}
		if r.Displacement < 0 || r.Rainfall < 0 {
			t.Errorf("readings must be clamped at zero: %+v", r)
		}
	}
}

func TestTriggerDrill(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	now := testStart.Add(time.Minute)

	alert, err := f.runner.TriggerDrill(ctx, "z3", now)
	if err != nil {
		t.Fatalf("TriggerDrill: %v", err)
	}
	if alert.ZoneID != "z3" || alert.Level != models.RiskHigh {
		t.Errorf("unexpected drill alert: %+v", alert)
	}
	if alert.Message != "Haul Road Cut: High rockfall risk (drill)" {
		t.Errorf("unexpected message: %s", alert.Message)
	}

	events, _ := f.events.Query(ctx, compliance.Filter{Zone: "z3"})
	if len(events) != 1 {
		t.Fatalf("expected a compliance record for the drill, got %d", len(events))
	}

	// The crack override pushes the zone over the high threshold on the
	// next cycle.
	f.runner.Tick(now.Add(time.Second))
	for _, z := range f.store.Zones() {
		if z.ID == "z3" && z.Risk != models.RiskHigh {
			t.Errorf("expected z3 high after drill, got %s", z.Risk)
		}
	}
}

func TestTriggerDrill_UnknownZone(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.runner.TriggerDrill(context.Background(), "nope", testStart)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunner_StartStop(t *testing.T) {
	f := newFixture(t, false)

	id, ch := f.bc.Subscribe()
	f.runner.EnsureStarted()
	f.runner.EnsureStarted() // idempotent

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for the first tick")
	}

	f.bc.Unsubscribe(id)
	f.runner.Stop()
	f.runner.Stop() // idempotent
}

func TestRunner_StopsWhenIdleAndRestarts(t *testing.T) {
	f := newFixture(t, false)
	f.bc.OnSubscribe(f.runner.EnsureStarted)

	id, ch := f.bc.Subscribe()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for the first tick")
	}
	f.bc.Unsubscribe(id)

	// With no subscribers left the loop parks itself after the next tick.
	time.Sleep(100 * time.Millisecond)

	// A new subscriber brings it back via the hook.
	id2, ch2 := f.bc.Subscribe()
	defer f.bc.Unsubscribe(id2)
	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("loop did not restart on resubscribe")
	}

	f.runner.Stop()
}

func TestRunner_SubscribeDuringIdleCheckKeepsEventsFlowing(t *testing.T) {
	f := newFixture(t, false)
	f.bc.OnSubscribe(f.runner.EnsureStarted)
	defer f.runner.Stop()

	// Churn subscribers so ticks keep ending inside brief zero-subscriber
	// windows. Every replacement subscriber must still see events,
	// whichever side of the idle check its Subscribe lands on.
	var prev uint64
	for i := 0; i < 40; i++ {
		if prev != 0 {
			f.bc.Unsubscribe(prev)
		}
		id, ch := f.bc.Subscribe()
		prev = id

		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("subscriber %d never received an event", i)
		}
	}
	f.bc.Unsubscribe(prev)
}

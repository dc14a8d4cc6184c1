// Package compliance keeps the append-only ledger of alert-triggered
// events. Records are never rewritten: resolving a zone appends a
// Resolved shadow record derived from the ongoing one.
package compliance

import (
	"context"
	"sync"
	"time"

	"github.com/minewatch/pitguard/internal/models"
)

// Filter narrows a query. Zero values pass everything through; all set
// fields are ANDed.
type Filter struct {
	Zone     string
	Worker   string
	Status   models.EventStatus
	Severity models.RiskLevel
	From     time.Time
	To       time.Time
}

func (f Filter) matches(e models.ComplianceEvent) bool {
	if f.Zone != "" && e.ZoneID != f.Zone {
		return false
	}
	if f.Worker != "" && !contains(e.WorkersAlerted, f.Worker) {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

// EventLog is the ledger behind an interface so the in-memory default can
// be swapped for the sqlite-backed one without touching callers.
type EventLog interface {
	// LogAlert appends an Ongoing event snapshotting the workers in the
	// alert's zone at alert time.
	LogAlert(ctx context.Context, alert models.Alert, workersAlerted []string) (models.ComplianceEvent, error)
	// ResolveZone appends a Resolved shadow of the zone's current Ongoing
	// event, if any, and returns it. A zone whose latest record is already
	// Resolved is a no-op.
	ResolveZone(ctx context.Context, zoneID string, now time.Time) (*models.ComplianceEvent, error)
	// Query returns matching events newest first.
	Query(ctx context.Context, f Filter) ([]models.ComplianceEvent, error)
	Close() error
}

// NewEvent builds the ledger record for an alert.
func NewEvent(alert models.Alert, workersAlerted []string) models.ComplianceEvent {
	delivery := make(map[string]time.Time, len(workersAlerted))
	for _, id := range workersAlerted {
		delivery[id] = alert.Timestamp
	}
	if workersAlerted == nil {
		workersAlerted = []string{}
	}
	return models.ComplianceEvent{
		EventID:           "E" + alert.ID,
		Timestamp:         alert.Timestamp,
		ZoneID:            alert.ZoneID,
		WorkersAlerted:    workersAlerted,
		AlertDeliveryTime: delivery,
		Status:            models.StatusOngoing,
		Severity:          alert.Level,
	}
}

func resolvedShadow(e models.ComplianceEvent, now time.Time) models.ComplianceEvent {
	e.EventID += "R"
	e.Timestamp = now
	e.Status = models.StatusResolved
	return e
}

// MemoryLog is the in-process ledger: a newest-first slice behind a mutex.
type MemoryLog struct {
	mu     sync.RWMutex
	events []models.ComplianceEvent
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) LogAlert(_ context.Context, alert models.Alert, workersAlerted []string) (models.ComplianceEvent, error) {
	event := NewEvent(alert, workersAlerted)

	l.mu.Lock()
	l.events = append([]models.ComplianceEvent{event}, l.events...)
	l.mu.Unlock()

	return event, nil
}

func (l *MemoryLog) ResolveZone(_ context.Context, zoneID string, now time.Time) (*models.ComplianceEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.events {
		if e.ZoneID != zoneID {
			continue
		}
		if e.Status != models.StatusOngoing {
			// Most recent record for the zone already closes it out.
			return nil, nil
		}
		shadow := resolvedShadow(e, now)
		l.events = append([]models.ComplianceEvent{shadow}, l.events...)
		return &shadow, nil
	}
	return nil, nil
}

func (l *MemoryLog) Query(_ context.Context, f Filter) ([]models.ComplianceEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []models.ComplianceEvent{}
	for _, e := range l.events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *MemoryLog) Close() error { return nil }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

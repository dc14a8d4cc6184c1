package models

import "time"

// Alert is one emitted hazard alert. The alert list is append-only,
// most-recent-first, and doubles as the throttle key: a zone must not
// re-alert within the configured cooldown window.
type Alert struct {
	ID        string    `json:"id"`
	ZoneID    string    `json:"zoneId"`
	Level     RiskLevel `json:"level"`
	Message   string    `json:"message"`
	Actions   []string  `json:"actions"`
	Timestamp time.Time `json:"timestamp"`
}

type EventStatus string

const (
	StatusOngoing  EventStatus = "Ongoing"
	StatusResolved EventStatus = "Resolved"
)

// ComplianceEvent is one record of the immutable compliance ledger.
// Resolving never mutates an existing record; a Resolved shadow record is
// appended with a derived id instead.
type ComplianceEvent struct {
	EventID           string               `json:"event_id"`
	Timestamp         time.Time            `json:"timestamp"`
	ZoneID            string               `json:"zone_id"`
	WorkersAlerted    []string             `json:"workers_alerted"`
	AlertDeliveryTime map[string]time.Time `json:"alert_delivery_time"`
	SupervisorAction  string               `json:"supervisor_action,omitempty"`
	Status            EventStatus          `json:"status"`
	Severity          RiskLevel            `json:"severity"`
}

// Prediction is the output of one prediction cycle.
type Prediction struct {
	Timestamp        time.Time         `json:"timestamp"`
	Zones            []Zone            `json:"zones"`
	Flags            PredictionFlags   `json:"flags"`
	EvacuationRoutes []EvacuationRoute `json:"evacuationRoutes"`
}

type PredictionFlags struct {
	Barricade bool `json:"barricade"`
}

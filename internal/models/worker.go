package models

import "time"

type WorkerType string

const (
	WorkerRFID WorkerType = "rfid"
	WorkerBLE  WorkerType = "ble"
)

// WorkerTag is a tracked personnel tag. ZoneID is derived: it is
// re-resolved against current zone polygons whenever the worker moves or
// any polygon changes, and is empty while the worker is outside all zones.
type WorkerTag struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	Type     WorkerType `json:"type"`
	LastSeen time.Time  `json:"lastSeen"`
	Location LatLng     `json:"location"`
	ZoneID   string     `json:"zoneId,omitempty"`
}

// WorkerRef is the subset of a tag listed in occupancy views.
type WorkerRef struct {
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
	Type WorkerType `json:"type"`
}

type ZoneOccupancy struct {
	ZoneID   string      `json:"zoneId"`
	ZoneName string      `json:"zoneName"`
	Count    int         `json:"count"`
	Workers  []WorkerRef `json:"workers"`
}

// EvacuationAlert is a personalized instruction for one worker.
type EvacuationAlert struct {
	WorkerID        string   `json:"worker_id"`
	Message         string   `json:"message"`
	EvacuationRoute []LatLng `json:"evacuation_route"`
	Urgency         string   `json:"urgency"` // High, Medium or Low
	Language        string   `json:"language"`
}

// RiskAssessmentItem is one row of the supervisor risk ranking.
type RiskAssessmentItem struct {
	ZoneID            string `json:"zone_id"`
	RiskScore         int    `json:"risk_score"`
	WorkersAtRisk     int    `json:"workers_at_risk"`
	RecommendedAction string `json:"recommended_action"`
}

package models

import "time"

// SensorReading is the latest telemetry for a zone. Only the most recent
// reading per zone is retained; history is a presentation concern.
type SensorReading struct {
	Timestamp    time.Time `json:"timestamp"`
	ZoneID       string    `json:"zoneId"`
	Displacement float64   `json:"displacement"` // mm
	Strain       float64   `json:"strain"`       // microstrain
	PorePressure float64   `json:"porePressure"` // kPa
	Rainfall     float64   `json:"rainfall"`     // mm/h
	Temperature  float64   `json:"temperature"`  // degrees C
	Vibration    float64   `json:"vibration"`    // mm/s
}

type DeviceStatus string

const (
	DeviceActive      DeviceStatus = "Active"
	DeviceFaulty      DeviceStatus = "Faulty"
	DeviceInactive    DeviceStatus = "Inactive"
	DeviceMaintenance DeviceStatus = "Maintenance"
)

// SensorDevice tracks one physical device's heartbeat and uptime.
type SensorDevice struct {
	SensorID      string       `json:"sensor_id"`
	Type          string       `json:"type"`
	ZoneID        string       `json:"zone_id"`
	Status        DeviceStatus `json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	ActiveMs      int64        `json:"-"`
	TotalMs       int64        `json:"-"`
}

// DeviceSnapshot is the externally visible view of a SensorDevice.
type DeviceSnapshot struct {
	SensorID      string       `json:"sensor_id"`
	Type          string       `json:"type"`
	ZoneID        string       `json:"zone_id"`
	Status        DeviceStatus `json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	UptimePct     float64      `json:"uptime_pct"`
}

type SensorStats struct {
	Total         int                  `json:"total"`
	ByStatus      map[DeviceStatus]int `json:"by_status"`
	AverageUptime float64              `json:"average_uptime"`
}

// SensorHealth is the per-tick health view pushed to subscribers.
type SensorHealth struct {
	Sensors []DeviceSnapshot `json:"sensors"`
	Stats   SensorStats      `json:"stats"`
}

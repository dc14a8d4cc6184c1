package models

import (
	"encoding/json"
	"fmt"
)

// EventKind tags a stream event so consumers can dispatch without
// inspecting the payload shape.
type EventKind string

const (
	EventZones        EventKind = "zones"
	EventSensor       EventKind = "sensor"
	EventPrediction   EventKind = "prediction"
	EventAlert        EventKind = "alert"
	EventWorker       EventKind = "worker"
	EventOccupancy    EventKind = "occupancy"
	EventSensorHealth EventKind = "sensor_health"
)

// StreamEvent is the closed set of events the broadcast channel carries.
// Zones, prediction, occupancy and sensor-health events replace whole
// state on the consumer side; sensor, alert and worker events are deltas.
type StreamEvent interface {
	Kind() EventKind
}

type ZonesEvent []Zone

func (ZonesEvent) Kind() EventKind { return EventZones }

type SensorEvent SensorReading

func (SensorEvent) Kind() EventKind { return EventSensor }

type PredictionEvent Prediction

func (PredictionEvent) Kind() EventKind { return EventPrediction }

type AlertEvent Alert

func (AlertEvent) Kind() EventKind { return EventAlert }

type WorkerEvent WorkerTag

func (WorkerEvent) Kind() EventKind { return EventWorker }

type OccupancyEvent []ZoneOccupancy

func (OccupancyEvent) Kind() EventKind { return EventOccupancy }

type SensorHealthEvent SensorHealth

func (SensorHealthEvent) Kind() EventKind { return EventSensorHealth }

type eventEnvelope struct {
	Type    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent marshals an event into its tagged wire envelope.
func EncodeEvent(e StreamEvent) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("error marshaling %s payload: %w", e.Kind(), err)
	}
	return json.Marshal(eventEnvelope{Type: e.Kind(), Payload: payload})
}

// DecodeEvent parses a tagged wire envelope back into its concrete event.
func DecodeEvent(data []byte) (StreamEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("error unmarshaling envelope: %w", err)
	}

	var e StreamEvent
	switch env.Type {
	case EventZones:
		e = new(ZonesEvent)
	case EventSensor:
		e = new(SensorEvent)
	case EventPrediction:
		e = new(PredictionEvent)
	case EventAlert:
		e = new(AlertEvent)
	case EventWorker:
		e = new(WorkerEvent)
	case EventOccupancy:
		e = new(OccupancyEvent)
	case EventSensorHealth:
		e = new(SensorHealthEvent)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Payload, e); err != nil {
		return nil, fmt.Errorf("error unmarshaling %s payload: %w", env.Type, err)
	}
	return deref(e), nil
}

func deref(e StreamEvent) StreamEvent {
	switch v := e.(type) {
	case *ZonesEvent:
		return *v
	case *SensorEvent:
		return *v
	case *PredictionEvent:
		return *v
	case *AlertEvent:
		return *v
	case *WorkerEvent:
		return *v
	case *OccupancyEvent:
		return *v
	case *SensorHealthEvent:
		return *v
	}
	return e
}

package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeEvent_Envelope(t *testing.T) {
	data, err := EncodeEvent(AlertEvent{ID: "a1", ZoneID: "z1", Level: RiskHigh})
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("invalid envelope: %v", err)
	}
	if env.Type != "alert" {
		t.Errorf("expected type alert, got %s", env.Type)
	}
	var a Alert
	if err := json.Unmarshal(env.Payload, &a); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if a.ID != "a1" || a.ZoneID != "z1" {
		t.Errorf("payload did not round-trip: %+v", a)
	}
}

func TestDecodeEvent_RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	events := []StreamEvent{
		ZonesEvent{{ID: "z1", Name: "North Slope", Risk: RiskHigh, Probability: 0.8}},
		SensorEvent{ZoneID: "z1", Displacement: 4.2, Timestamp: now},
		PredictionEvent{Timestamp: now, Flags: PredictionFlags{Barricade: true}},
		AlertEvent{ID: "a1", ZoneID: "z1", Level: RiskHigh, Timestamp: now},
		WorkerEvent{ID: "w1", ZoneID: "z2", LastSeen: now},
		OccupancyEvent{{ZoneID: "z1", Count: 2}},
		SensorHealthEvent{Stats: SensorStats{Total: 4}},
	}

	for _, e := range events {
		data, err := EncodeEvent(e)
		if err != nil {
			t.Fatalf("%s: encode: %v", e.Kind(), err)
		}
		decoded, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", e.Kind(), err)
		}
		if decoded.Kind() != e.Kind() {
			t.Errorf("kind changed: %s -> %s", e.Kind(), decoded.Kind())
		}
	}
}

func TestDecodeEvent_ReturnsValueTypes(t *testing.T) {
	data, _ := EncodeEvent(AlertEvent{ID: "a1"})
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Consumers type-switch on value types, not pointers.
	alert, ok := decoded.(AlertEvent)
	if !ok {
		t.Fatalf("expected AlertEvent value, got %T", decoded)
	}
	if alert.ID != "a1" {
		t.Errorf("unexpected payload: %+v", alert)
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	if _, err := DecodeEvent([]byte(`{"type":"volcano","payload":{}}`)); err == nil {
		t.Error("expected an error for an unknown event type")
	}
	if _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Error("expected an error for malformed input")
	}
	if _, err := DecodeEvent([]byte(`{"type":"alert","payload":"nope"}`)); err == nil {
		t.Error("expected an error for a mismatched payload")
	}
}

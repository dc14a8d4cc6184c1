// Package ingest consumes real site telemetry over MQTT as an
// alternative to the simulated feed: sensor readings, device heartbeats
// and worker tag positions published by field gateways.
package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/minewatch/pitguard/internal/config"
	"github.com/minewatch/pitguard/internal/models"
	"github.com/minewatch/pitguard/internal/sensorhealth"
	"github.com/minewatch/pitguard/internal/state"
	"github.com/minewatch/pitguard/internal/stream"
)

type heartbeatPayload struct {
	ElapsedMs int64 `json:"elapsed_ms"`
}

type workerPayload struct {
	Name     string            `json:"name"`
	Type     models.WorkerType `json:"type"`
	Location models.LatLng     `json:"location"`
}

// Consumer bridges MQTT topics into the world state and broadcast
// channel. Topics, relative to the configured prefix:
//
//	telemetry/<zoneID>   - full SensorReading JSON
//	heartbeat/<sensorID> - {"elapsed_ms": n}
//	worker/<workerID>    - {"name", "type", "location"}
type Consumer struct {
	client mqtt.Client
	cfg    config.MQTTConfig
	store  *state.Store
	health *sensorhealth.Tracker
	bc     *stream.Broadcaster
	logger *slog.Logger
}

func NewConsumer(cfg config.MQTTConfig, store *state.Store, health *sensorhealth.Tracker, bc *stream.Broadcaster, logger *slog.Logger) *Consumer {
	return &Consumer{
		cfg:    cfg,
		store:  store,
		health: health,
		bc:     bc,
		logger: logger,
	}
}

// Start connects to the broker and subscribes to the telemetry topics.
func (c *Consumer) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
	}
	if c.cfg.Password != "" {
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	topic := c.cfg.TopicPrefix + "/#"
	if token := c.client.Subscribe(topic, 1, c.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	c.logger.Info("MQTT consumer started", "broker", c.cfg.Broker, "topic", topic)
	return nil
}

func (c *Consumer) Stop() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Consumer) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	rel := strings.TrimPrefix(msg.Topic(), c.cfg.TopicPrefix+"/")
	parts := strings.SplitN(rel, "/", 2)
	if len(parts) != 2 {
		c.logger.Warn("unroutable MQTT topic", "topic", msg.Topic())
		return
	}

	var err error
	switch parts[0] {
	case "telemetry":
		err = c.handleTelemetry(parts[1], msg.Payload())
	case "heartbeat":
		err = c.handleHeartbeat(parts[1], msg.Payload())
	case "worker":
		err = c.handleWorker(parts[1], msg.Payload())
	default:
		c.logger.Warn("unroutable MQTT topic", "topic", msg.Topic())
		return
	}
	if err != nil {
		// A bad payload never interrupts the consumer.
		c.logger.Error("error handling MQTT message", "topic", msg.Topic(), "error", err)
	}
}

func (c *Consumer) handleTelemetry(zoneID string, payload []byte) error {
	var reading models.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("error unmarshaling reading: %w", err)
	}
	reading.ZoneID = zoneID
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}

	c.store.ApplySensorReading(reading)
	c.bc.Publish(models.SensorEvent(reading))
	return nil
}

func (c *Consumer) handleHeartbeat(sensorID string, payload []byte) error {
	var hb heartbeatPayload
	if err := json.Unmarshal(payload, &hb); err != nil {
		return fmt.Errorf("error unmarshaling heartbeat: %w", err)
	}

	_, err := c.health.Heartbeat(sensorID, time.Duration(hb.ElapsedMs)*time.Millisecond, time.Now())
	if err != nil {
		return fmt.Errorf("heartbeat for %s: %w", sensorID, err)
	}
	return nil
}

func (c *Consumer) handleWorker(workerID string, payload []byte) error {
	var wp workerPayload
	if err := json.Unmarshal(payload, &wp); err != nil {
		return fmt.Errorf("error unmarshaling worker position: %w", err)
	}
	if wp.Type == "" {
		wp.Type = models.WorkerRFID
	}

	updated := c.store.UpsertWorker(models.WorkerTag{
		ID:       workerID,
		Name:     wp.Name,
		Type:     wp.Type,
		Location: wp.Location,
	}, time.Now())
	c.bc.Publish(models.WorkerEvent(updated))
	return nil
}

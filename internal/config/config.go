package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Loop    LoopConfig
	Risk    RiskConfig
	Sim     SimConfig
	MQTT    MQTTConfig
	Notify  NotifyConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type LoopConfig struct {
	TickInterval        time.Duration
	AlertCooldown       time.Duration
	DeviceGracePeriod   time.Duration
	DeviceFaultCooldown time.Duration
	StreamHeartbeat     time.Duration
}

type RiskConfig struct {
	HighThreshold   float64
	MediumThreshold float64
}

type SimConfig struct {
	Enabled bool
}

type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

type NotifyConfig struct {
	WebhookURL string
	FromNumber string
	ToNumber   string
}

type DatabaseConfig struct {
	// Path of the compliance-log database. Empty keeps the log in memory.
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Loop: LoopConfig{
			TickInterval:        getEnvDuration("LOOP_TICK_INTERVAL", 4*time.Second),
			AlertCooldown:       getEnvDuration("ALERT_COOLDOWN", 60*time.Second),
			DeviceGracePeriod:   getEnvDuration("DEVICE_GRACE_PERIOD", 30*time.Second),
			DeviceFaultCooldown: getEnvDuration("DEVICE_FAULT_COOLDOWN", 5*time.Minute),
			StreamHeartbeat:     getEnvDuration("STREAM_HEARTBEAT", 15*time.Second),
		},
		Risk: RiskConfig{
			HighThreshold:   getEnvFloat("RISK_HIGH_THRESHOLD", 0.7),
			MediumThreshold: getEnvFloat("RISK_MEDIUM_THRESHOLD", 0.4),
		},
		Sim: SimConfig{
			Enabled: getEnvBool("SIM_ENABLED", true),
		},
		MQTT: MQTTConfig{
			Enabled:     getEnvBool("MQTT_ENABLED", false),
			Broker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "pitguard"),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "pitguard"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("SMS_WEBHOOK_URL", ""),
			FromNumber: getEnv("SMS_FROM_NUMBER", ""),
			ToNumber:   getEnv("SMS_TO_NUMBER", ""),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", ""),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Loop.TickInterval < time.Second {
		return fmt.Errorf("loop tick interval must be at least 1 second")
	}
	if c.Loop.AlertCooldown <= 0 {
		return fmt.Errorf("alert cooldown must be positive")
	}

	m, h := c.Risk.MediumThreshold, c.Risk.HighThreshold
	if !(0 < m && m < h && h < 1) {
		return fmt.Errorf("risk thresholds must satisfy 0 < medium < high < 1, got medium=%v high=%v", m, h)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

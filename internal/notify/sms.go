// Package notify delivers alerts to an external SMS gateway. Delivery is
// fire-and-forget: a sink failure is logged and swallowed, never
// propagated to whatever triggered the alert.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/minewatch/pitguard/internal/config"
	"github.com/minewatch/pitguard/internal/models"
)

type smsMessage struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type SMSSink struct {
	client *resty.Client
	cfg    config.NotifyConfig
	logger *slog.Logger
}

func NewSMSSink(cfg config.NotifyConfig, logger *slog.Logger) *SMSSink {
	client := resty.New().
		SetBaseURL(cfg.WebhookURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &SMSSink{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Send pushes the alert to the gateway. With no gateway configured the
// alert is logged locally instead.
func (s *SMSSink) Send(ctx context.Context, alert models.Alert, toPhone string) {
	if toPhone == "" {
		toPhone = s.cfg.ToNumber
	}

	if s.cfg.WebhookURL == "" || toPhone == "" {
		s.logger.Info("alert (no SMS gateway configured)",
			"zone_id", alert.ZoneID, "level", alert.Level, "message", alert.Message)
		return
	}

	body := fmt.Sprintf("%s. Actions: %s", alert.Message, strings.Join(alert.Actions, "; "))
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(smsMessage{From: s.cfg.FromNumber, To: toPhone, Body: body}).
		Post("")
	if err != nil {
		s.logger.Error("SMS delivery failed", "zone_id", alert.ZoneID, "error", err)
		return
	}
	if resp.IsError() {
		s.logger.Error("SMS gateway rejected alert", "zone_id", alert.ZoneID, "status", resp.StatusCode())
		return
	}

	s.logger.Info("alert delivered", "zone_id", alert.ZoneID, "to", toPhone)
}

package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// postJSON POSTs payload to url and fails on any non-2xx response.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// WebhookChannel sends alerts as JSON to an HTTP endpoint.
type WebhookChannel struct {
	name    string
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookChannel creates a new webhook channel.
func NewWebhookChannel(name, url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		name:    name,
		url:     url,
		headers: headers,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookChannel) Name() string {
	return w.name
}

func (w *WebhookChannel) Send(ctx context.Context, alert Alert) error {
	if err := postJSON(ctx, w.client, w.url, w.headers, alert); err != nil {
		return fmt.Errorf("webhook %s: %w", w.name, err)
	}
	return nil
}

// SlackChannel sends alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	channel    string
	username   string
	client     *http.Client
}

// NewSlackChannel creates a new Slack channel.
func NewSlackChannel(webhookURL, channel, username string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		channel:    channel,
		username:   username,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"channel":  s.channel,
		"username": s.username,
		"attachments": []map[string]any{
			{
				"color":  severityColor(alert.Severity),
				"title":  fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Category),
				"text":   alert.Message,
				"fields": slackFields(alert),
				"footer": fmt.Sprintf("Alert ID: %s", alert.ID.String()[:8]),
				"ts":     alert.Timestamp.Unix(),
			},
		},
	}

	if err := postJSON(ctx, s.client, s.webhookURL, nil, payload); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	return nil
}

func severityColor(sev Severity) string {
	switch sev {
	case SeverityCritical:
		return "#FF0000"
	case SeverityHigh:
		return "#FFA500"
	case SeverityMedium:
		return "#FFFF00"
	case SeverityLow:
		return "#00FF00"
	default:
		return "#808080"
	}
}

func slackFields(alert Alert) []map[string]any {
	fields := []map[string]any{
		{"title": "Source", "value": alert.SourceID, "short": true},
		{"title": "Observed", "value": fmt.Sprintf("%g (threshold %g)", alert.Observed, alert.Threshold), "short": true},
	}
	if alert.ActorID != "" {
		fields = append(fields, map[string]any{
			"title": "Actor", "value": alert.ActorID, "short": true,
		})
	}
	return fields
}

// LogChannel writes alerts to a structured logger.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a new log channel.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (l *LogChannel) Name() string {
	return "log"
}

func (l *LogChannel) Send(ctx context.Context, alert Alert) error {
	l.logger.LogAttrs(ctx, slog.LevelWarn, alert.String(),
		slog.String("alert_id", alert.ID.String()),
		slog.String("category", string(alert.Category)),
		slog.String("severity", string(alert.Severity)),
		slog.String("source_id", alert.SourceID),
		slog.Float64("observed", alert.Observed),
		slog.Float64("threshold", alert.Threshold),
	)
	return nil
}

package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/studystack/sentinel/pkg/models"
)

// webhookVersion is stamped on every outbound payload so receivers can
// detect schema changes.
const webhookVersion = "1.0"

// WebhookSenderOptions configures the generic webhook sender.
type WebhookSenderOptions struct {
	// ServiceName identifies this deployment in the payload.
	ServiceName   string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// WebhookSender POSTs alerts as JSON to arbitrary endpoints. The alert's
// severity and ID are duplicated into headers so receivers can route without
// parsing the body.
type WebhookSender struct {
	service string
	client  *http.Client
	logger  *slog.Logger
}

type webhookPayload struct {
	EventType      string       `json:"event_type"`
	Alert          models.Alert `json:"alert"`
	Service        string       `json:"service"`
	Timestamp      time.Time    `json:"timestamp"`
	WebhookVersion string       `json:"webhook_version"`
}

// NewWebhookSender constructs a WebhookSender.
func NewWebhookSender(opts WebhookSenderOptions) *WebhookSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	service := opts.ServiceName
	if service == "" {
		service = "sentinel"
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.SkipTLSVerify}, // #nosec G402
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookSender{
		service: service,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		logger:  logger.With("component", "alert_webhook_sender"),
	}
}

// Send POSTs the alert to the channel's destination URL.
func (s *WebhookSender) Send(ctx context.Context, alert models.Alert, channel models.NotificationChannel) error {
	payload := webhookPayload{
		EventType:      "alert_triggered",
		Alert:          alert,
		Service:        s.service,
		Timestamp:      time.Now().UTC(),
		WebhookVersion: webhookVersion,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.Destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Alert-Severity", string(alert.Severity))
	request.Header.Set("X-Alert-ID", alert.AlertID)

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	responseBody, readErr := io.ReadAll(response.Body)
	_ = response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		detail := response.Status
		if readErr == nil {
			if trimmed := strings.TrimSpace(string(responseBody)); trimmed != "" {
				detail = trimmed
			}
		}
		return fmt.Errorf("webhook returned status %d (%s)", response.StatusCode, detail)
	}
	return nil
}

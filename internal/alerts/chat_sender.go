package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/studystack/sentinel/pkg/models"
)

// ChatSenderOptions configures the chat webhook sender.
type ChatSenderOptions struct {
	// DashboardURL, when set, is linked from the message's action button.
	DashboardURL string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// ChatSender posts a structured message to a chat webhook (Slack-compatible
// incoming webhook shape: text plus attachment fields and an action button).
type ChatSender struct {
	dashboardURL string
	client       *http.Client
	logger       *slog.Logger
}

type chatMessage struct {
	Text        string           `json:"text"`
	Attachments []chatAttachment `json:"attachments,omitempty"`
}

type chatAttachment struct {
	Color   string       `json:"color,omitempty"`
	Fields  []chatField  `json:"fields,omitempty"`
	Actions []chatAction `json:"actions,omitempty"`
}

type chatField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type chatAction struct {
	Type string `json:"type"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

var severityColors = map[models.RuleSeverity]string{
	models.RuleSeverityLow:      "#439FE0",
	models.RuleSeverityMedium:   "#FFA500",
	models.RuleSeverityHigh:     "#FF4500",
	models.RuleSeverityCritical: "#FF0000",
}

// NewChatSender constructs a ChatSender.
func NewChatSender(opts ChatSenderOptions) *ChatSender {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatSender{
		dashboardURL: opts.DashboardURL,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With("component", "alert_chat_sender"),
	}
}

// Send posts the alert message to the channel's destination webhook URL.
func (s *ChatSender) Send(ctx context.Context, alert models.Alert, channel models.NotificationChannel) error {
	attachment := chatAttachment{
		Color: severityColors[alert.Severity],
		Fields: []chatField{
			{Title: "Metric", Value: alert.MetricName, Short: true},
			{Title: "Value", Value: fmt.Sprintf("%.2f", alert.MetricValue), Short: true},
			{Title: "Threshold", Value: fmt.Sprintf("%.2f", alert.Threshold), Short: true},
			{Title: "Severity", Value: strings.ToUpper(string(alert.Severity)), Short: true},
		},
	}
	if alert.BusinessContext != "" {
		attachment.Fields = append(attachment.Fields,
			chatField{Title: "Business Impact", Value: alert.BusinessContext})
	}
	if s.dashboardURL != "" {
		attachment.Actions = append(attachment.Actions, chatAction{
			Type: "button",
			Text: "Open Dashboard",
			URL:  s.dashboardURL,
		})
	}

	message := chatMessage{
		Text:        fmt.Sprintf(":rotating_light: *%s* triggered at %s", alert.RuleName, alert.TriggeredAt.Format(time.RFC3339)),
		Attachments: []chatAttachment{attachment},
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.Destination, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("chat webhook request failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
	if response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("chat webhook returned status %d", response.StatusCode)
	}
	return nil
}

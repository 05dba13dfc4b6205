package alerts

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"github.com/studystack/sentinel/pkg/models"
)

// ProviderSender adapts a carrier Provider (SMS, pager) to the Sender
// contract. The message is a compact single line suited to character-limited
// transports.
type ProviderSender struct {
	provider Provider
	kind     models.ChannelType
}

// NewProviderSender wraps a Provider for the given channel type.
func NewProviderSender(kind models.ChannelType, provider Provider) *ProviderSender {
	return &ProviderSender{provider: provider, kind: kind}
}

// Send delivers a short alert summary through the provider.
func (s *ProviderSender) Send(ctx context.Context, alert models.Alert, channel models.NotificationChannel) error {
	if s.provider == nil {
		return fmt.Errorf("no %s provider configured", s.kind)
	}
	message := fmt.Sprintf("[%s] %s: %s=%.2f (threshold %.2f)",
		strings.ToUpper(string(alert.Severity)),
		alert.RuleName,
		alert.MetricName,
		alert.MetricValue,
		alert.Threshold)
	return s.provider.Deliver(ctx, channel.Destination, message)
}

// LogProvider is the built-in placeholder provider: it records the delivery
// intent and succeeds. Swap in a real carrier SDK behind Provider for
// production paging.
type LogProvider struct {
	log  *slog.Logger
	kind models.ChannelType
}

// NewLogProvider constructs a LogProvider for the given channel type.
func NewLogProvider(kind models.ChannelType, log *slog.Logger) *LogProvider {
	if log == nil {
		log = slog.Default()
	}
	return &LogProvider{log: log.With("component", "alert_provider", "channel", string(kind)), kind: kind}
}

// Deliver logs the message in place of a real carrier call.
func (p *LogProvider) Deliver(_ context.Context, destination, message string) error {
	p.log.Warn("no carrier configured, logging delivery instead",
		"destination", destination, "message", message)
	return nil
}

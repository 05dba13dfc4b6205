package alerts

import (
	"context"

	"github.com/studystack/sentinel/pkg/models"
)

// Sender delivers one alert to one channel. Implementations exist per
// channel type; the dispatcher owns retry and outcome recording.
type Sender interface {
	Send(ctx context.Context, alert models.Alert, channel models.NotificationChannel) error
}

// Provider is the external delivery contract for carrier-backed channels
// (SMS, pager). Real provider SDKs plug in behind this interface.
type Provider interface {
	Deliver(ctx context.Context, destination, message string) error
}

// Package notify delivers alert notifications derived from telemetry to
// external sinks. Delivery is best effort; the channel logs and drops
// failures without retrying.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/outletwatch/telemetry/src/telemetry"
)

// Sink receives alert notifications.
type Sink interface {
	Deliver(ctx context.Context, alert telemetry.AlertNotification) error
}

// LogSink writes alerts to the structured log. Used when no webhook is
// configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs alerts at warn level.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Logger()}
}

func (s *LogSink) Deliver(_ context.Context, alert telemetry.AlertNotification) error {
	s.logger.Warn().
		Str("id", alert.ID).
		Str("device_id", alert.DeviceID).
		Str("alert_type", alert.AlertType).
		Str("sensor", alert.Sensor).
		Msg("device alert")
	return nil
}

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outletwatch/telemetry/src/telemetry"
)

// dispatch classifies one inbound frame. Malformed payloads are logged and
// discarded without affecting connection state.
func (c *Channel) dispatch(data []byte) {
	var env telemetry.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Error().Err(err).Msg("malformed frame, discarding")
		return
	}

	switch env.Type {
	case telemetry.FrameConnected:
		// Informational: the transport-open handler already moved the
		// state machine.
		c.logger.Debug().Msg("server handshake acknowledged")
	case telemetry.FrameTelemetry:
		c.handleTelemetry(env.Data)
	case telemetry.FrameError:
		c.logger.Warn().Str("message", env.Message).Msg("server reported error")
	default:
		c.logger.Debug().Str("type", env.Type).Msg("unrecognized frame, discarding")
	}
}

// handleTelemetry decodes a device update and fans it out: the current
// event observer first, then the notification sink for alerts. Both side
// effects occur for the same frame.
func (c *Channel) handleTelemetry(data []byte) {
	var ev telemetry.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Error().Err(err).Msg("malformed telemetry event, discarding")
		return
	}
	if ev.ReceivedAt == "" {
		ev.ReceivedAt = time.Now().UTC().Format(time.RFC3339)
	}

	// The observer slot is read here, not captured at connect time, so a
	// swapped observer is honored without reopening the socket.
	c.mu.Lock()
	observer := c.onEvent
	c.mu.Unlock()
	if observer != nil {
		observer(ev)
	}

	if ev.MessageType == telemetry.MessageAlert {
		c.deliverAlert(ev)
	}
}

// deliverAlert hands an alert-type event to the notification sink. Delivery
// is attempted exactly once per qualifying frame; failures are logged and
// never escalated.
func (c *Channel) deliverAlert(ev telemetry.Event) {
	if c.sink == nil {
		return
	}

	alert := telemetry.AlertNotification{
		ID:         fmt.Sprintf("%s_%d", ev.DeviceID, time.Now().UnixMilli()),
		DeviceID:   ev.DeviceID,
		ReceivedAt: ev.ReceivedAt,
	}
	if s, ok := ev.Payload["alert"].(string); ok {
		alert.AlertType = s
	}
	if s, ok := ev.Payload["sensor"].(string); ok {
		alert.Sensor = s
	}
	if v, ok := ev.Payload["value"].(float64); ok {
		alert.Value = &v
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := c.sink.Deliver(ctx, alert); err != nil {
		c.logger.Error().Err(err).
			Str("device_id", ev.DeviceID).
			Str("alert_type", alert.AlertType).
			Msg("alert delivery failed")
	}
}

package telemetry

import "encoding/json"

// ConnectionState describes the channel's link status.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Frame type discriminators used by the server.
const (
	FrameConnected = "connected"
	FrameTelemetry = "telemetry"
	FrameError     = "error"
)

// Message types carried inside a telemetry frame.
const (
	MessageSensorReading = "sensor_reading"
	MessageAlert         = "alert"
	MessagePowerStatus   = "power_status"
	MessageAlertCleared  = "alert_cleared"
)

// Close codes reserved by the server for permanent authentication failure.
// A close with any of these codes must not be retried.
const (
	CloseInvalidToken = 4001
	CloseTokenExpired = 4002
	CloseForbidden    = 4003
)

// CommandFrameType tags outbound command frames on the wire, distinguishing
// them from the inbound-only frame shapes.
const CommandFrameType = "command_sent"

// Envelope is the top-level shape of every inbound frame.
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Event is one decoded device update. Payload shape depends on MessageType.
type Event struct {
	DeviceID    string         `json:"deviceId"`
	MessageType string         `json:"messageType"`
	Payload     map[string]any `json:"payload,omitempty"`
	ReceivedAt  string         `json:"receivedAt,omitempty"`
}

// AlertNotification is the record handed to the notification sink for
// alert-type events. ID is a transient local notification key, not a
// stable identifier.
type AlertNotification struct {
	ID         string   `json:"id"`
	DeviceID   string   `json:"deviceId"`
	AlertType  string   `json:"alertType"`
	Sensor     string   `json:"sensor,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	ReceivedAt string   `json:"receivedAt"`
}

// OutboundCommand is the wire shape written by SendCommand.
type OutboundCommand struct {
	Command   string `json:"command"`
	DeviceID  string `json:"deviceId"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

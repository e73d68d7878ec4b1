// Package agent wires one telemetry channel per authenticated session and
// tracks what it has seen for the local status API.
package agent

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/outletwatch/telemetry/src/channel"
	"github.com/outletwatch/telemetry/src/telemetry"
)

// DeviceStatus is the last observed update for one device.
type DeviceStatus struct {
	DeviceID    string         `json:"device_id"`
	MessageType string         `json:"message_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	ReceivedAt  string         `json:"received_at"`
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State          string `json:"state"`
	EventsSeen     uint64 `json:"events_seen"`
	AlertsSeen     uint64 `json:"alerts_seen"`
	CommandsSent   uint64 `json:"commands_sent"`
	CommandsFailed uint64 `json:"commands_failed"`
	Devices        int    `json:"devices"`
}

// Agent observes a channel and exposes command and status operations on
// top of it.
type Agent struct {
	ch     *channel.Channel
	logger zerolog.Logger

	mu      sync.RWMutex
	state   telemetry.ConnectionState
	devices map[string]DeviceStatus
	events  uint64
	alerts  uint64
	sent    uint64
	failed  uint64
}

// New creates the agent and registers it as the channel's observers.
func New(ch *channel.Channel, logger zerolog.Logger) *Agent {
	a := &Agent{
		ch:      ch,
		logger:  logger.With().Str("component", "agent").Logger(),
		devices: make(map[string]DeviceStatus),
	}
	ch.SetEventObserver(a.onEvent)
	ch.SetStateObserver(a.onState)
	return a
}

func (a *Agent) onEvent(ev telemetry.Event) {
	a.mu.Lock()
	a.events++
	if ev.MessageType == telemetry.MessageAlert {
		a.alerts++
	}
	a.devices[ev.DeviceID] = DeviceStatus{
		DeviceID:    ev.DeviceID,
		MessageType: ev.MessageType,
		Payload:     ev.Payload,
		ReceivedAt:  ev.ReceivedAt,
	}
	a.mu.Unlock()

	a.logger.Debug().
		Str("device_id", ev.DeviceID).
		Str("message_type", ev.MessageType).
		Msg("telemetry event")
}

func (a *Agent) onState(s telemetry.ConnectionState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()

	a.logger.Info().Str("state", s.String()).Msg("connection state changed")
}

// SendCommand forwards a command through the channel, counting outcomes.
func (a *Agent) SendCommand(deviceID, command string) bool {
	ok := a.ch.SendCommand(deviceID, command)

	a.mu.Lock()
	if ok {
		a.sent++
	} else {
		a.failed++
	}
	a.mu.Unlock()
	return ok
}

// Snapshot returns the current session view.
func (a *Agent) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Snapshot{
		State:          a.state.String(),
		EventsSeen:     a.events,
		AlertsSeen:     a.alerts,
		CommandsSent:   a.sent,
		CommandsFailed: a.failed,
		Devices:        len(a.devices),
	}
}

// Devices returns last-seen statuses ordered by device ID.
func (a *Agent) Devices() []DeviceStatus {
	a.mu.RLock()
	statuses := make([]DeviceStatus, 0, len(a.devices))
	for _, st := range a.devices {
		statuses = append(statuses, st)
	}
	a.mu.RUnlock()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].DeviceID < statuses[j].DeviceID
	})
	return statuses
}

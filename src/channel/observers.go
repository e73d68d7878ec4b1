package channel

import "github.com/outletwatch/telemetry/src/telemetry"

// SetEventObserver replaces the telemetry observer. The slot is re-read on
// every inbound frame, so swapping it does not require reopening the
// socket. Pass nil to stop observing.
func (c *Channel) SetEventObserver(fn func(telemetry.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// SetStateObserver replaces the connection-state observer. The observer is
// invoked once per transition, outside the channel lock.
func (c *Channel) SetStateObserver(fn func(telemetry.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

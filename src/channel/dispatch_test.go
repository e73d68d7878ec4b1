package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outletwatch/telemetry/src/telemetry"
)

// eventRecorder captures observer invocations.
type eventRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *eventRecorder) record(ev telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) get() []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]telemetry.Event, len(r.events))
	copy(cp, r.events)
	return cp
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestAlertFanOut(t *testing.T) {
	d := &mockDialer{}
	sink := &recordingSink{}
	ch, conn := openConnected(t, d, sink)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"alert","deviceId":"D1","payload":{"alert":"GAS_LEAK_DETECTED","sensor":"gas","value":412.5}}}`)

	waitFor(t, func() bool { return len(sink.get()) == 1 }, "alert not delivered")
	waitFor(t, func() bool { return rec.count() == 1 }, "observer not invoked")

	alerts := sink.get()
	require.Len(t, alerts, 1)
	assert.Equal(t, "GAS_LEAK_DETECTED", alerts[0].AlertType)
	assert.Equal(t, "D1", alerts[0].DeviceID)
	assert.Equal(t, "gas", alerts[0].Sensor)
	require.NotNil(t, alerts[0].Value)
	assert.Equal(t, 412.5, *alerts[0].Value)
	assert.True(t, strings.HasPrefix(alerts[0].ID, "D1_"))
	assert.NotEmpty(t, alerts[0].ReceivedAt)

	events := rec.get()
	require.Len(t, events, 1)
	assert.Equal(t, telemetry.MessageAlert, events[0].MessageType)
	assert.Equal(t, "D1", events[0].DeviceID)
}

func TestNonAlertDoesNotNotify(t *testing.T) {
	d := &mockDialer{}
	sink := &recordingSink{}
	ch, conn := openConnected(t, d, sink)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"sensor_reading","deviceId":"D2","payload":{"temperature":21.5}}}`)

	waitFor(t, func() bool { return rec.count() == 1 }, "observer not invoked")
	assert.Empty(t, sink.get())
}

func TestObserverSwapTakesEffect(t *testing.T) {
	d := &mockDialer{}
	ch, conn := openConnected(t, d, nil)

	first := &eventRecorder{}
	second := &eventRecorder{}
	ch.SetEventObserver(first.record)
	ch.SetEventObserver(second.record)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"power_status","deviceId":"D3","payload":{"breaker":"on"}}}`)

	waitFor(t, func() bool { return second.count() == 1 }, "replacement observer not invoked")
	assert.Zero(t, first.count())
}

func TestMalformedFrameIgnored(t *testing.T) {
	d := &mockDialer{}
	sink := &recordingSink{}
	ch, conn := openConnected(t, d, sink)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{not json at all`)
	conn.frames <- []byte(`{"type":"telemetry","data":"not an object"}`)

	// The connection survives and keeps dispatching.
	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"sensor_reading","deviceId":"D4","payload":{}}}`)
	waitFor(t, func() bool { return rec.count() == 1 }, "valid frame after garbage not dispatched")

	assert.Equal(t, telemetry.StateConnected, ch.State())
	assert.Empty(t, sink.get())
	assert.Equal(t, "D4", rec.get()[0].DeviceID)
}

func TestServerErrorFrame(t *testing.T) {
	d := &mockDialer{}
	ch, conn := openConnected(t, d, nil)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"error","message":"subscription limit reached"}`)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, telemetry.StateConnected, ch.State())
	assert.Zero(t, rec.count())
}

func TestConnectedFrameInformational(t *testing.T) {
	d := &mockDialer{}
	ch, conn := openConnected(t, d, nil)

	conn.frames <- []byte(`{"type":"connected"}`)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, telemetry.StateConnected, ch.State())
}

func TestUnknownFrameDiscarded(t *testing.T) {
	d := &mockDialer{}
	sink := &recordingSink{}
	ch, conn := openConnected(t, d, sink)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"presence","data":{"who":"nobody"}}`)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, telemetry.StateConnected, ch.State())
	assert.Zero(t, rec.count())
	assert.Empty(t, sink.get())
}

func TestReceivedAtDefaulted(t *testing.T) {
	d := &mockDialer{}
	ch, conn := openConnected(t, d, nil)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"sensor_reading","deviceId":"D5","payload":{}}}`)
	waitFor(t, func() bool { return rec.count() == 1 }, "observer not invoked")

	assert.NotEmpty(t, rec.get()[0].ReceivedAt)
}

func TestReceivedAtPreserved(t *testing.T) {
	d := &mockDialer{}
	ch, conn := openConnected(t, d, nil)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"sensor_reading","deviceId":"D6","payload":{},"receivedAt":"2026-08-01T10:00:00Z"}}`)
	waitFor(t, func() bool { return rec.count() == 1 }, "observer not invoked")

	assert.Equal(t, "2026-08-01T10:00:00Z", rec.get()[0].ReceivedAt)
}

func TestAlertWithoutObserverStillNotifies(t *testing.T) {
	d := &mockDialer{}
	sink := &recordingSink{}
	_, conn := openConnected(t, d, sink)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"alert","deviceId":"D7","payload":{"alert":"WATER_LEAK_DETECTED"}}}`)

	waitFor(t, func() bool { return len(sink.get()) == 1 }, "alert not delivered")
	assert.Equal(t, "WATER_LEAK_DETECTED", sink.get()[0].AlertType)
}

func TestSinkFailureDoesNotAffectConnection(t *testing.T) {
	d := &mockDialer{}
	sink := &failingSink{}
	ch, conn := openConnected(t, d, sink)

	rec := &eventRecorder{}
	ch.SetEventObserver(rec.record)

	conn.frames <- []byte(`{"type":"telemetry","data":{"messageType":"alert","deviceId":"D8","payload":{"alert":"MOVEMENT_DETECTED"}}}`)
	waitFor(t, func() bool { return rec.count() == 1 }, "observer not invoked")

	assert.Equal(t, telemetry.StateConnected, ch.State())
}

type failingSink struct{}

func (s *failingSink) Deliver(_ context.Context, _ telemetry.AlertNotification) error {
	return errors.New("sink unavailable")
}

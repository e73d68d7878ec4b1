// Package channel maintains one persistent telemetry connection to the
// backend: it authenticates with a bearer token, classifies inbound frames,
// reconnects after transient failures, and provides a gated best-effort
// command path to remote devices.
package channel

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/outletwatch/telemetry/src/credstore"
	"github.com/outletwatch/telemetry/src/notify"
	"github.com/outletwatch/telemetry/src/telemetry"
)

// ErrNoCredential is returned by Open when the credential store holds no
// bearer token. The condition is terminal for this channel: retrying cannot
// succeed, the owner must re-authenticate and construct a new channel.
var ErrNoCredential = errors.New("channel: no auth token in credential store")

// ErrClosed is returned by Open after the channel has been torn down.
var ErrClosed = errors.New("channel: closed")

// ErrAlreadyOpen is returned by Open while a connection attempt or live
// connection exists. Reconnection is internal; Open is not a retry
// primitive.
var ErrAlreadyOpen = errors.New("channel: already open")

const (
	// DefaultTokenKey is the credential store key holding the bearer token.
	DefaultTokenKey = "auth_token"

	// DefaultReconnectDelay is the flat delay between reconnect attempts.
	// No backoff, no jitter: the endpoint is assumed low-latency and
	// always-available, and observable reconnect timing is part of the
	// contract.
	DefaultReconnectDelay = 3 * time.Second

	sinkTimeout = 5 * time.Second
)

// DialFunc opens a WebSocket connection to the given URL.
type DialFunc func(rawURL string) (telemetry.Conn, error)

func defaultDial(rawURL string) (telemetry.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options configure a Channel.
type Options struct {
	Endpoint       string        // WebSocket base URL, e.g. "wss://api.example.com/ws"
	TokenKey       string        // credential store key, defaults to DefaultTokenKey
	ReconnectDelay time.Duration // defaults to DefaultReconnectDelay
	Dial           DialFunc      // defaults to a fasthttp/websocket dialer
}

// Channel owns the lifecycle of one telemetry connection. At most one
// physical connection exists at any time; all state transitions are driven
// by the channel itself.
type Channel struct {
	opts   Options
	creds  credstore.Store
	sink   notify.Sink
	logger zerolog.Logger

	mu        sync.Mutex
	state     telemetry.ConnectionState
	conn      telemetry.Conn
	reconnect *time.Timer
	closed    bool

	// writeMu serializes transport writes: the connection supports only
	// one concurrent writer.
	writeMu sync.Mutex

	onEvent func(telemetry.Event)
	onState func(telemetry.ConnectionState)
}

// New creates a channel for one authenticated session. The sink receives
// alert notifications; pass nil to disable alert fan-out.
func New(opts Options, creds credstore.Store, sink notify.Sink, logger zerolog.Logger) *Channel {
	if opts.TokenKey == "" {
		opts.TokenKey = DefaultTokenKey
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Dial == nil {
		opts.Dial = defaultDial
	}
	return &Channel{
		opts:  opts,
		creds: creds,
		sink:  sink,
		logger: logger.With().
			Str("component", "channel").
			Str("session_id", uuid.New().String()).
			Logger(),
		state: telemetry.StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Channel) State() telemetry.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open reads the bearer token and starts the first connection attempt.
// Reconnection after failures is internal; Open is not a retry primitive.
func (c *Channel) Open(ctx context.Context) error {
	token, err := c.creds.Get(ctx, c.opts.TokenKey)
	if err != nil || token == "" {
		c.logger.Warn().Err(err).Msg("no auth token, channel stays disconnected")
		return ErrNoCredential
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// A pending reconnect timer counts as open: its dial must never race
	// with one started here.
	if c.state != telemetry.StateDisconnected || c.reconnect != nil {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	notifyState := c.transitionLocked(telemetry.StateConnecting)
	c.mu.Unlock()
	notifyState()

	go c.connect(token)
	return nil
}

// connect dials the endpoint and, on success, hands the socket to the read
// loop. A dial failure counts as a transient disconnect.
func (c *Channel) connect(token string) {
	conn, err := c.opts.Dial(c.endpointURL(token))
	if err != nil {
		c.logger.Error().Err(err).Msg("dial failed")
		c.mu.Lock()
		notifyState := c.transitionLocked(telemetry.StateDisconnected)
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		notifyState()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	notifyState := c.transitionLocked(telemetry.StateConnected)
	c.mu.Unlock()
	notifyState()

	c.logger.Info().Msg("telemetry connection established")
	go c.readLoop(conn)
}

func (c *Channel) endpointURL(token string) string {
	// Token travels as a query parameter: the handshake cannot carry
	// custom headers on every client transport the server supports.
	return c.opts.Endpoint + "/telemetry?token=" + url.QueryEscape(token)
}

func (c *Channel) readLoop(conn telemetry.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.dispatch(data)
	}
}

// handleDisconnect runs once per connection, when its read loop fails.
// Spontaneous closes apply the reconnect policy; teardown does not.
func (c *Channel) handleDisconnect(conn telemetry.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// Stale loop from an already-replaced connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closedByOwner := c.closed
	notifyState := c.transitionLocked(telemetry.StateDisconnected)
	retry := !closedByOwner && shouldReconnect(err)
	if retry {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
	notifyState()

	conn.Close()
	if closedByOwner {
		return
	}
	if retry {
		c.logger.Warn().Err(err).
			Dur("retry_in", c.opts.ReconnectDelay).
			Msg("connection lost, reconnect scheduled")
	} else {
		c.logger.Error().Err(err).Msg("connection closed, not retrying")
	}
}

// shouldReconnect classifies a read error. The reserved auth-failure close
// codes and a clean closure suppress the retry; everything else, including
// plain network errors, is transient.
func shouldReconnect(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure,
			telemetry.CloseInvalidToken,
			telemetry.CloseTokenExpired,
			telemetry.CloseForbidden:
			return false
		}
	}
	return true
}

// scheduleReconnectLocked arms the one-shot reconnect timer. At most one
// timer is pending at any time.
func (c *Channel) scheduleReconnectLocked() {
	if c.closed || c.reconnect != nil {
		return
	}
	c.reconnect = time.AfterFunc(c.opts.ReconnectDelay, c.retry)
}

func (c *Channel) retry() {
	// Connecting is entered before the token read so Open keeps rejecting
	// concurrent attempts for the whole retry.
	c.mu.Lock()
	c.reconnect = nil
	if c.closed {
		c.mu.Unlock()
		return
	}
	notifyState := c.transitionLocked(telemetry.StateConnecting)
	c.mu.Unlock()
	notifyState()

	// The token is re-read on every attempt so a refreshed credential is
	// picked up without recreating the channel.
	token, err := c.creds.Get(context.Background(), c.opts.TokenKey)
	if err != nil || token == "" {
		c.logger.Warn().Err(err).Msg("no auth token at reconnect, giving up")
		c.mu.Lock()
		notifyState = c.transitionLocked(telemetry.StateDisconnected)
		c.mu.Unlock()
		notifyState()
		return
	}

	c.connect(token)
}

// SendCommand writes a breaker or diagnostic command to a device. It never
// panics: when the channel is not connected it returns false without
// touching the transport, and write failures are logged and reported as
// false. No acknowledgement is tracked; callers needing confirmation must
// infer it from subsequent telemetry.
func (c *Channel) SendCommand(deviceID, command string) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == telemetry.StateConnected
	c.mu.Unlock()

	if conn == nil || !connected {
		c.logger.Warn().
			Str("device_id", deviceID).
			Str("command", command).
			Msg("command dropped, not connected")
		return false
	}

	cmd := telemetry.OutboundCommand{
		Command:   command,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      telemetry.CommandFrameType,
	}
	c.writeMu.Lock()
	err := conn.WriteJSON(cmd)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Error().Err(err).
			Str("device_id", deviceID).
			Str("command", command).
			Msg("command write failed")
		return false
	}

	c.logger.Debug().
		Str("device_id", deviceID).
		Str("command", command).
		Msg("command sent")
	return true
}

// Close tears the channel down: the pending reconnect timer is cancelled,
// the live socket is closed, and no reconnect is scheduled. Safe to call
// more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	notifyState := c.transitionLocked(telemetry.StateDisconnected)
	c.mu.Unlock()
	notifyState()

	c.logger.Info().Msg("channel closed")
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// transitionLocked updates the state under the lock and returns a closure
// that reports the change to the current state observer. Callers invoke it
// after unlocking so observers never run with the channel lock held.
func (c *Channel) transitionLocked(s telemetry.ConnectionState) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	cb := c.onState
	if cb == nil {
		return func() {}
	}
	return func() { cb(s) }
}

// Package transport owns message delivery for one open chat session: a
// realtime websocket channel and a polling fallback, with an explicit
// active-channel state machine so exactly one is authoritative.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/metrics"
)

const (
	// DefaultPollInterval is the polling fallback cadence.
	DefaultPollInterval = 3 * time.Second

	// reconnectBaseDelay and reconnectMaxAttempts bound automatic socket
	// reconnection.
	reconnectBaseDelay   = time.Second
	reconnectMaxAttempts = 5
)

// Channel identifies which delivery mechanism is authoritative.
type Channel string

const (
	ChannelNone    Channel = "none"
	ChannelSocket  Channel = "socket"
	ChannelPolling Channel = "polling"
)

// Events receives inbound session activity. Implemented by the
// conversation runtime; calls may arrive from the read-loop or polling
// goroutines.
type Events interface {
	InboundMessage(msg chat.Message)
	AgentTyping(typing bool)
	AgentJoined(name string)
	AgentChanged(name string)
	SessionClosed()
}

// Conn is the slice of a websocket connection the manager uses. Satisfied
// by *websocket.Conn; tests substitute a fake.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

// DialFunc establishes the realtime connection.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options tune the manager. Zero values select production defaults.
type Options struct {
	PollInterval  time.Duration
	Dial          DialFunc
	ReconnectBase time.Duration
}

// Manager arbitrates the two delivery paths for one session.
type Manager struct {
	client    *api.Client
	history   *chat.History
	events    Events
	sessionID string
	visitorID string

	pollInterval  time.Duration
	dial          DialFunc
	reconnectBase time.Duration

	mu       sync.Mutex
	active   Channel
	conn     Conn
	writeMu  sync.Mutex
	pollStop chan struct{}
	closed   bool
}

// NewManager creates a transport manager for an existing session. Inbound
// messages are deduplicated against (and appended to) the given history
// before events fire.
func NewManager(client *api.Client, history *chat.History, events Events, sessionID, visitorID string, opts Options) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = reconnectBaseDelay
	}
	return &Manager{
		client:        client,
		history:       history,
		events:        events,
		sessionID:     sessionID,
		visitorID:     visitorID,
		pollInterval:  opts.PollInterval,
		dial:          opts.Dial,
		reconnectBase: opts.ReconnectBase,
		active:        ChannelNone,
	}
}

// Start begins polling immediately as a bridge, then attempts the realtime
// connection in the background.
func (m *Manager) Start(ctx context.Context) {
	m.StartPolling()
	go m.connect(ctx)
}

// ActiveChannel returns the currently authoritative delivery channel.
func (m *Manager) ActiveChannel() Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// StartPolling activates the polling fallback if no channel is active.
func (m *Manager) StartPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startPollingLocked()
}

func (m *Manager) startPollingLocked() {
	if m.closed || m.pollStop != nil || m.active == ChannelSocket {
		return
	}

	stop := make(chan struct{})
	m.pollStop = stop
	m.active = ChannelPolling
	metrics.TransportSwitchesTotal.WithLabelValues(string(ChannelPolling)).Inc()

	go m.pollLoop(stop)
}

// StopPolling halts the polling fallback synchronously: after it returns
// no further polling request is issued.
func (m *Manager) StopPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopPollingLocked()
}

func (m *Manager) stopPollingLocked() {
	if m.pollStop != nil {
		close(m.pollStop)
		m.pollStop = nil
	}
	if m.active == ChannelPolling {
		m.active = ChannelNone
	}
}

func (m *Manager) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

// PollOnce fetches messages newer than the history watermark and delivers
// the ones not already seen. Also used by tests to poll deterministically.
func (m *Manager) PollOnce() { m.pollOnce() }

func (m *Manager) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), m.pollInterval)
	defer cancel()

	msgs, err := m.client.MessagesSince(ctx, m.sessionID, m.history.LastMessageAt())
	if err != nil {
		logrus.Debugf("poll failed for session %s: %v", m.sessionID, err)
		return
	}

	for _, msg := range msgs {
		m.deliver(msg)
	}
}

// deliver appends an inbound message, dropping duplicates already seen on
// the other channel.
func (m *Manager) deliver(msg chat.Message) {
	if !m.history.Append(msg) {
		return
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	m.events.InboundMessage(msg)
}

// connect dials the realtime channel with bounded retries. On success the
// poller is stopped before any inbound frame is processed; on exhaustion
// polling simply stays active.
func (m *Manager) connect(ctx context.Context) {
	url, err := m.client.RealtimeURL(m.sessionID, m.visitorID)
	if err != nil {
		logrus.Warnf("realtime channel unavailable: %v", err)
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.reconnectBase

	var conn Conn
	err = backoff.Retry(
		func() error {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return backoff.Permanent(context.Canceled)
			}

			c, err := m.dial(ctx, url)
			if err != nil {
				logrus.Debugf("realtime connect failed: %v", err)
				return err
			}
			conn = c
			return nil
		},
		// WithMaxRetries counts retries after the first call, so the
		// total dial attempts equal reconnectMaxAttempts.
		backoff.WithMaxRetries(b, reconnectMaxAttempts-1),
	)
	if err != nil {
		// Connection failures are never surfaced; polling remains the
		// delivery path.
		logrus.Debugf("realtime channel giving up after %d attempts: %v", reconnectMaxAttempts, err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.stopPollingLocked()
	m.conn = conn
	m.active = ChannelSocket
	m.mu.Unlock()

	metrics.TransportSwitchesTotal.WithLabelValues(string(ChannelSocket)).Inc()
	logrus.Debugf("realtime channel connected for session %s", m.sessionID)

	go m.readLoop(ctx, conn)
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.onDisconnect(ctx, conn, err)
			return
		}
		m.handleFrame(data)
	}
}

// onDisconnect downgrades to polling and schedules a fresh bounded
// reconnect cycle.
func (m *Manager) onDisconnect(ctx context.Context, conn Conn, cause error) {
	conn.Close()

	m.mu.Lock()
	if m.conn != conn {
		// A newer connection already took over.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.active = ChannelNone
	closed := m.closed
	if !closed {
		m.startPollingLocked()
	}
	m.mu.Unlock()

	if closed {
		return
	}

	logrus.Debugf("realtime channel lost (%v), polling resumed", cause)
	go m.connect(ctx)
}

// SendTyping forwards the visitor-typing signal. Silently dropped when the
// realtime channel is not connected; typing is non-critical.
func (m *Manager) SendTyping(typing bool) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(outboundFrame{Type: frameVisitorTyping, IsTyping: typing}); err != nil {
		logrus.Debugf("typing signal dropped: %v", err)
	}
}

// Close tears the whole transport down: polling and socket both stop.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopPollingLocked()
	conn := m.conn
	m.conn = nil
	m.active = ChannelNone
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

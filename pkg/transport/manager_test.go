package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/chat"
)

type recordingEvents struct {
	mu       sync.Mutex
	messages []chat.Message
	typing   []bool
	joined   []string
	changed  []string
	closed   int
}

func (e *recordingEvents) InboundMessage(msg chat.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

func (e *recordingEvents) AgentTyping(t bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typing = append(e.typing, t)
}

func (e *recordingEvents) AgentJoined(n string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = append(e.joined, n)
}

func (e *recordingEvents) AgentChanged(n string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed = append(e.changed, n)
}

func (e *recordingEvents) SessionClosed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
}

func (e *recordingEvents) messageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

// fakeConn is a scripted websocket connection.
type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	wrote []outboundFrame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (c *fakeConn) push(v inboundFrame) {
	data, _ := json.Marshal(v)
	c.frames <- data
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.frames:
		return websocket.TextMessage, data, nil
	case <-c.done:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	frame, ok := v.(outboundFrame)
	if !ok {
		return errors.New("unexpected frame type")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wrote = append(c.wrote, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// pollBackend serves MessagesSince with a fixed reply and counts hits.
func pollBackend(t *testing.T, messages []chat.Message) (*api.Client, *int64) {
	t.Helper()
	var hits int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": messages})
	}))
	t.Cleanup(srv.Close)

	return api.NewClient(srv.URL, "proj-1"), &hits
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestManager_DedupAcrossTransports(t *testing.T) {
	serverMsg := chat.Message{ID: "m-1", Role: chat.RoleAgent, Content: "hi", CreatedAt: time.Now().UTC()}
	client, _ := pollBackend(t, []chat.Message{serverMsg})

	history := chat.NewHistory()
	events := &recordingEvents{}
	conn := newFakeConn()

	m := NewManager(client, history, events, "s-1", "v-1", Options{
		PollInterval: time.Hour, // polls only via PollOnce
		Dial: func(ctx context.Context, url string) (Conn, error) {
			return conn, nil
		},
	})
	t.Cleanup(m.Close)

	// Same server-issued message arrives on both paths
	m.PollOnce()
	m.handleFrame(mustMarshal(inboundFrame{Type: frameMessage, Message: &serverMsg}))

	if history.Len() != 1 {
		t.Errorf("history length = %d, expected 1", history.Len())
	}
	if events.messageCount() != 1 {
		t.Errorf("delivered events = %d, expected 1", events.messageCount())
	}
}

func TestManager_SocketWinsOverPolling(t *testing.T) {
	client, hits := pollBackend(t, nil)

	conn := newFakeConn()
	m := NewManager(client, chat.NewHistory(), &recordingEvents{}, "s-1", "v-1", Options{
		PollInterval: 10 * time.Millisecond,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			return conn, nil
		},
	})
	t.Cleanup(m.Close)

	m.Start(context.Background())

	waitFor(t, time.Second, func() bool { return m.ActiveChannel() == ChannelSocket })

	// Let any in-flight poll settle, then verify no further requests
	time.Sleep(30 * time.Millisecond)
	before := atomic.LoadInt64(hits)
	time.Sleep(100 * time.Millisecond)
	after := atomic.LoadInt64(hits)

	if after != before {
		t.Errorf("polling continued while socket connected: %d extra requests", after-before)
	}
}

func TestManager_PollingResumesOnDisconnect(t *testing.T) {
	client, hits := pollBackend(t, nil)

	var dials int64
	m := NewManager(client, chat.NewHistory(), &recordingEvents{}, "s-1", "v-1", Options{
		PollInterval:  10 * time.Millisecond,
		ReconnectBase: 5 * time.Millisecond,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			if atomic.AddInt64(&dials, 1) > 1 {
				return nil, errors.New("backend gone")
			}
			return newFakeConn(), nil
		},
	})
	t.Cleanup(m.Close)

	m.Start(context.Background())
	waitFor(t, time.Second, func() bool { return m.ActiveChannel() == ChannelSocket })

	// Kill the socket: the read loop must downgrade to polling
	m.mu.Lock()
	live := m.conn
	m.mu.Unlock()
	live.Close()

	waitFor(t, time.Second, func() bool { return m.ActiveChannel() == ChannelPolling })

	before := atomic.LoadInt64(hits)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(hits) > before })
}

func TestManager_StartBridgesWithPolling(t *testing.T) {
	client, hits := pollBackend(t, nil)

	dialRelease := make(chan struct{})
	m := NewManager(client, chat.NewHistory(), &recordingEvents{}, "s-1", "v-1", Options{
		PollInterval: 10 * time.Millisecond,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			<-dialRelease
			return newFakeConn(), nil
		},
	})
	t.Cleanup(m.Close)
	t.Cleanup(func() { close(dialRelease) })

	m.Start(context.Background())

	if m.ActiveChannel() != ChannelPolling {
		t.Errorf("ActiveChannel() = %s, expected polling before socket connects", m.ActiveChannel())
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(hits) > 0 })
}

func TestManager_GivesUpAfterBoundedDialAttempts(t *testing.T) {
	client, _ := pollBackend(t, nil)

	var attempts int64
	m := NewManager(client, chat.NewHistory(), &recordingEvents{}, "s-1", "v-1", Options{
		PollInterval:  time.Hour,
		ReconnectBase: time.Millisecond,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			atomic.AddInt64(&attempts, 1)
			return nil, errors.New("connection refused")
		},
	})
	t.Cleanup(m.Close)

	m.Start(context.Background())

	waitFor(t, time.Second, func() bool { return atomic.LoadInt64(&attempts) == reconnectMaxAttempts })
	time.Sleep(200 * time.Millisecond)
	if n := atomic.LoadInt64(&attempts); n != reconnectMaxAttempts {
		t.Errorf("dialed %d times, expected %d", n, reconnectMaxAttempts)
	}
	if m.ActiveChannel() == ChannelSocket {
		t.Error("socket reported active after dial failures")
	}
}

func TestManager_TypingOnlyWhenConnected(t *testing.T) {
	client, _ := pollBackend(t, nil)
	conn := newFakeConn()

	m := NewManager(client, chat.NewHistory(), &recordingEvents{}, "s-1", "v-1", Options{
		PollInterval: time.Hour,
		Dial: func(ctx context.Context, url string) (Conn, error) {
			return conn, nil
		},
	})
	t.Cleanup(m.Close)

	// Not connected yet: dropped silently
	m.SendTyping(true)
	if len(conn.wrote) != 0 {
		t.Error("typing written before connect")
	}

	m.Start(context.Background())
	waitFor(t, time.Second, func() bool { return m.ActiveChannel() == ChannelSocket })

	m.SendTyping(true)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.wrote) != 1 || conn.wrote[0].Type != frameVisitorTyping || !conn.wrote[0].IsTyping {
		t.Errorf("wrote = %+v, expected one visitor:typing", conn.wrote)
	}
}

func TestManager_InboundFrames(t *testing.T) {
	client, _ := pollBackend(t, nil)
	events := &recordingEvents{}

	m := NewManager(client, chat.NewHistory(), events, "s-1", "v-1", Options{PollInterval: time.Hour})
	t.Cleanup(m.Close)

	m.handleFrame(mustMarshal(inboundFrame{Type: frameTyping, IsTyping: true}))
	m.handleFrame(mustMarshal(inboundFrame{Type: frameAgentJoined, AgentName: "Dana"}))
	m.handleFrame(mustMarshal(inboundFrame{Type: frameAgentChanged, AgentName: "Lee"}))
	m.handleFrame(mustMarshal(inboundFrame{Type: frameChatClosed}))
	m.handleFrame([]byte("{not json"))
	m.handleFrame(mustMarshal(inboundFrame{Type: "unknown:event"}))

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.typing) != 1 || !events.typing[0] {
		t.Errorf("typing = %v", events.typing)
	}
	if len(events.joined) != 1 || events.joined[0] != "Dana" {
		t.Errorf("joined = %v", events.joined)
	}
	if len(events.changed) != 1 || events.changed[0] != "Lee" {
		t.Errorf("changed = %v", events.changed)
	}
	if events.closed != 1 {
		t.Errorf("closed = %d", events.closed)
	}
}

func mustMarshal(v inboundFrame) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

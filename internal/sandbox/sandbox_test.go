package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/stream"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

func testCatalog() *Catalog {
	return &Catalog{
		Widget: widget.Config{Enabled: true, ChatMode: widget.ModeAIFirst},
		Elements: []widget.Element{
			{ID: "e1", ElementType: widget.ElementToast, TriggerType: widget.TriggerImmediate, FrequencyCap: widget.CapSession},
		},
		AIScript:  "Hello from the sandbox",
		AgentName: "Riley",
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(testCatalog(), 0)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func postJSON(t *testing.T, url string, in any, out any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(in)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	postJSON(t, base+"/api/v1/chat/sessions", map[string]string{"visitorName": "Ada"}, &resp)
	if resp.Session.ID == "" {
		t.Fatal("no session id")
	}
	return resp.Session.ID
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elements.yaml")
	data := `
widget:
  enabled: true
  chatMode: ai_first
  autoOpenDelay: 5
  handoffEnabled: true
  greetingText: Hi there
  quickActions:
    - label: Pricing
      message: Tell me about pricing
elements:
  - id: e1
    elementType: popup
    triggerType: time
    triggerConfig:
      delaySeconds: 5
    frequencyCap: daily
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cat.Widget.Enabled || len(cat.Elements) != 1 {
		t.Errorf("catalog %+v", cat)
	}
	if cat.Widget.ChatMode != widget.ModeAIFirst || cat.Widget.AutoOpenDelay != 5 {
		t.Errorf("widget config %+v", cat.Widget)
	}
	if !cat.Widget.HandoffEnabled || cat.Widget.GreetingText != "Hi there" {
		t.Errorf("widget config %+v", cat.Widget)
	}
	if len(cat.Widget.QuickActions) != 1 || cat.Widget.QuickActions[0].Message != "Tell me about pricing" {
		t.Errorf("quick actions %+v", cat.Widget.QuickActions)
	}
	if cat.Elements[0].Trigger.DelaySeconds != 5 {
		t.Errorf("trigger config %+v", cat.Elements[0].Trigger)
	}
	if cat.AIScript == "" || cat.AgentName == "" {
		t.Error("defaults not applied")
	}
}

func TestLoadCatalog_RejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elements.yaml")
	data := `
elements:
  - id: e1
    elementType: hologram
    triggerType: time
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for unknown element type")
	}
}

func TestConfigAndElements(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/widget/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cfg widget.Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if !cfg.Enabled || cfg.ChatMode != widget.ModeAIFirst {
		t.Errorf("config %+v", cfg)
	}

	resp2, err := http.Get(srv.URL + "/api/v1/widget/elements")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var out struct {
		Elements []widget.Element `json:"elements"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Elements) != 1 || out.Elements[0].ID != "e1" {
		t.Errorf("elements %+v", out.Elements)
	}
}

func TestSessionMessageRoundTrip(t *testing.T) {
	_, srv := newTestServer(t)
	id := createSession(t, srv.URL)

	resp := postJSON(t, srv.URL+"/api/v1/chat/sessions/"+id+"/messages", map[string]string{"content": "hi"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post message status %d", resp.StatusCode)
	}

	// The scripted agent replies shortly after.
	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := http.Get(srv.URL + "/api/v1/chat/sessions/" + id + "/messages")
		if err != nil {
			t.Fatal(err)
		}
		var out struct {
			Messages []chat.Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&out)
		r.Body.Close()

		if len(out.Messages) >= 2 {
			if out.Messages[1].Role != chat.RoleAgent {
				t.Fatalf("expected agent reply, got %+v", out.Messages[1])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("agent never replied, have %+v", out.Messages)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestAITurn_StreamsScript(t *testing.T) {
	_, srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"message": "what do you do"})
	resp, err := http.Post(srv.URL+"/api/v1/chat/ai/turn", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw := new(bytes.Buffer)
	raw.ReadFrom(resp.Body)
	events := stream.Parse(raw.Bytes())

	if len(events) < 3 {
		t.Fatalf("expected start/tokens/complete, got %+v", events)
	}
	if events[0].Type != stream.EventStart || events[0].ConversationID == "" {
		t.Errorf("start event %+v", events[0])
	}

	var assembled strings.Builder
	for _, ev := range events {
		if ev.Type == stream.EventToken {
			assembled.WriteString(ev.Token)
		}
	}
	if assembled.String() != "Hello from the sandbox" {
		t.Errorf("assembled %q", assembled.String())
	}

	last := events[len(events)-1]
	if last.Type != stream.EventComplete || last.HandoffRequested {
		t.Errorf("complete event %+v", last)
	}
}

func TestAITurn_HandoffOnHumanRequest(t *testing.T) {
	_, srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"message": "let me talk to a human"})
	resp, err := http.Post(srv.URL+"/api/v1/chat/ai/turn", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw := new(bytes.Buffer)
	raw.ReadFrom(resp.Body)
	events := stream.Parse(raw.Bytes())
	last := events[len(events)-1]
	if last.Type != stream.EventComplete || !last.HandoffRequested {
		t.Errorf("expected handoff, got %+v", last)
	}
}

func TestRealtime_AnnouncesAgentAndPushesMessages(t *testing.T) {
	_, srv := newTestServer(t)
	id := createSession(t, srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chat/rt?sessionId=" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var joined struct {
		Type      string `json:"type"`
		AgentName string `json:"agentName"`
	}
	if err := conn.ReadJSON(&joined); err != nil {
		t.Fatalf("read join frame: %v", err)
	}
	if joined.Type != "agent:joined" || joined.AgentName != "Riley" {
		t.Errorf("join frame %+v", joined)
	}

	postJSON(t, srv.URL+"/api/v1/chat/sessions/"+id+"/messages", map[string]string{"content": "ping"}, nil)

	var frame struct {
		Type    string        `json:"type"`
		Message *chat.Message `json:"message"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read message frame: %v", err)
	}
	if frame.Type != "message" || frame.Message == nil || frame.Message.Content != "ping" {
		t.Errorf("message frame %+v", frame)
	}
}

func TestRealtime_UnknownSession(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/chat/rt?sessionId=nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status %d", resp.StatusCode)
	}
}

// Package api is the HTTP client for the widget backend: configuration
// delivery, engagement elements, chat sessions, AI turns, message polling,
// and the analytics sinks.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

// Client talks to the widget backend for one project.
type Client struct {
	baseURL   string
	projectID string
	http      *http.Client
}

// NewClient creates a client for the given backend base URL and project.
func NewClient(baseURL, projectID string) *Client {
	return &Client{
		baseURL:   baseURL,
		projectID: projectID,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// ProjectID returns the project this client is bound to.
func (c *Client) ProjectID() string {
	return c.projectID
}

// FetchConfiguration loads the widget configuration for the project.
func (c *Client) FetchConfiguration(ctx context.Context) (*widget.Config, error) {
	q := url.Values{"projectId": {c.projectID}}

	var cfg widget.Config
	if err := c.getJSON(ctx, "/api/v1/widget/config", q, &cfg); err != nil {
		return nil, fmt.Errorf("failed to fetch configuration: %w", err)
	}
	return &cfg, nil
}

// FetchElements loads the engagement elements matching the page context.
func (c *Client) FetchElements(ctx context.Context, pageURL, device, visitorClass string) ([]widget.Element, error) {
	q := url.Values{
		"projectId":    {c.projectID},
		"url":          {pageURL},
		"device":       {device},
		"visitorClass": {visitorClass},
	}

	var resp struct {
		Elements []widget.Element `json:"elements"`
	}
	if err := c.getJSON(ctx, "/api/v1/widget/elements", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch elements: %w", err)
	}
	return resp.Elements, nil
}

// ElementEvent is one impression/click/close report.
type ElementEvent struct {
	ElementID  string `json:"elementId"`
	EventType  string `json:"eventType"`
	PageURL    string `json:"pageUrl"`
	VisitorID  string `json:"visitorId"`
	SessionID  string `json:"sessionId"`
	DeviceType string `json:"deviceType"`
}

// TrackElementEvent reports an element interaction. Fire-and-forget from
// the caller's perspective; the caller discards the error silently.
func (c *Client) TrackElementEvent(ctx context.Context, ev ElementEvent) error {
	return c.postJSON(ctx, "/api/v1/widget/events/element", ev, nil)
}

// WidgetEvent is a generic analytics event (widget_loaded, widget_opened,
// form_submitted, ...).
type WidgetEvent struct {
	ProjectID string         `json:"projectId"`
	SessionID string         `json:"sessionId,omitempty"`
	EventType string         `json:"eventType"`
	PageURL   string         `json:"pageUrl"`
	VisitorID string         `json:"visitorId"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TrackWidgetEvent reports a generic analytics event.
func (c *Client) TrackWidgetEvent(ctx context.Context, ev WidgetEvent) error {
	return c.postJSON(ctx, "/api/v1/widget/events", ev, nil)
}

// CreateSessionRequest carries visitor identity plus page context to the
// session-creation endpoint.
type CreateSessionRequest struct {
	ProjectID        string `json:"projectId"`
	VisitorID        string `json:"visitorId"`
	SessionID        string `json:"sessionId"`
	VisitorName      string `json:"visitorName,omitempty"`
	VisitorEmail     string `json:"visitorEmail,omitempty"`
	VisitorPhone     string `json:"visitorPhone,omitempty"`
	InitialMessage   string `json:"initialMessage,omitempty"`
	ChatMode         string `json:"chatMode,omitempty"`
	AIConversationID string `json:"aiConversationId,omitempty"`
	AISummary        string `json:"aiSummary,omitempty"`
	PageURL          string `json:"pageUrl,omitempty"`
}

// CreateSession creates a chat session and returns its durable id.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (string, error) {
	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := c.postJSON(ctx, "/api/v1/chat/sessions", req, &resp); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	if resp.Session.ID == "" {
		return "", fmt.Errorf("session creation returned no id")
	}
	return resp.Session.ID, nil
}

// AITurnRequest asks the AI endpoint for the next turn.
type AITurnRequest struct {
	ProjectID string         `json:"projectId"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   string         `json:"message"`
	History   []chat.Message `json:"history,omitempty"`
	Source    string         `json:"source,omitempty"`
	PageURL   string         `json:"pageUrl,omitempty"`
}

// AITurn posts a visitor message to the AI endpoint and returns the raw
// streamed body. The body is a complete event-stream document; the stream
// package decodes it.
func (c *Client) AITurn(ctx context.Context, req AITurnRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AI turn: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/ai/turn", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("AI turn request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AI turn returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// SendLiveMessage posts a visitor message into an existing session.
// Delivery confirmation arrives via realtime or polling, not here.
func (c *Client) SendLiveMessage(ctx context.Context, sessionID, content string) error {
	req := struct {
		Content string `json:"content"`
	}{Content: content}
	return c.postJSON(ctx, "/api/v1/chat/sessions/"+url.PathEscape(sessionID)+"/messages", req, nil)
}

// MessagesSince returns session messages newer than the watermark. A zero
// watermark returns the full history.
func (c *Client) MessagesSince(ctx context.Context, sessionID string, after time.Time) ([]chat.Message, error) {
	q := url.Values{}
	if !after.IsZero() {
		q.Set("after", after.Format(time.RFC3339Nano))
	}

	var resp struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/v1/chat/sessions/"+url.PathEscape(sessionID)+"/messages", q, &resp); err != nil {
		return nil, fmt.Errorf("failed to poll messages: %w", err)
	}
	return resp.Messages, nil
}

// RealtimeURL returns the websocket endpoint for a session, in ws scheme.
func (c *Client) RealtimeURL(sessionID, visitorID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/chat/rt"
	u.RawQuery = url.Values{
		"sessionId": {sessionID},
		"visitorId": {visitorID},
		"projectId": {c.projectID},
	}.Encode()
	return u.String(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

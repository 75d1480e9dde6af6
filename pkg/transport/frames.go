package transport

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/chat"
)

// Frame types on the realtime channel, namespaced to the session.
const (
	frameMessage      = "message"
	frameTyping       = "typing"
	frameAgentJoined  = "agent:joined"
	frameAgentChanged = "agent:changed"
	frameChatClosed   = "chat:closed"

	frameVisitorTyping = "visitor:typing"
)

// inboundFrame is the JSON envelope the backend sends on the socket.
type inboundFrame struct {
	Type      string        `json:"type"`
	Message   *chat.Message `json:"message,omitempty"`
	AgentName string        `json:"agentName,omitempty"`
	IsTyping  bool          `json:"isTyping,omitempty"`
}

// outboundFrame is the JSON envelope the visitor side sends.
type outboundFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping,omitempty"`
}

func (m *Manager) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		logrus.Warnf("dropping unreadable realtime frame: %v", err)
		return
	}

	switch frame.Type {
	case frameMessage:
		if frame.Message != nil {
			m.deliver(*frame.Message)
		}
	case frameTyping:
		m.events.AgentTyping(frame.IsTyping)
	case frameAgentJoined:
		m.events.AgentJoined(frame.AgentName)
	case frameAgentChanged:
		m.events.AgentChanged(frame.AgentName)
	case frameChatClosed:
		m.events.SessionClosed()
	default:
		logrus.Debugf("ignoring realtime frame type %q", frame.Type)
	}
}

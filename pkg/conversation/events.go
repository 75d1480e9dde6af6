package conversation

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/storage"
)

// The runtime is the transport layer's event sink. Frames and polled
// messages arrive on transport goroutines; everything here must stay
// re-entrant with the public API.

// InboundMessage surfaces a deduplicated server message.
func (r *Runtime) InboundMessage(msg chat.Message) {
	if msg.Role == chat.RoleAgent {
		// A reply means the agent stopped typing, whether or not the
		// typing:false frame made it through.
		r.setAgentTyping(false)
	}
	r.obs.MessagesChanged()
}

// AgentTyping reports the remote typing indicator. A stale true decays
// after a few seconds in case the clearing frame is lost.
func (r *Runtime) AgentTyping(typing bool) {
	r.setAgentTyping(typing)
}

func (r *Runtime) setAgentTyping(typing bool) {
	r.mu.Lock()
	if r.agentTypingTimer != nil {
		r.agentTypingTimer.Stop()
		r.agentTypingTimer = nil
	}
	if typing {
		r.agentTypingTimer = r.clk.AfterFunc(AgentTypingDecay, func() {
			r.setAgentTyping(false)
		})
	}
	r.mu.Unlock()

	r.obs.AgentTypingChanged(typing)
}

// AgentJoined announces a human agent picking up the session.
func (r *Runtime) AgentJoined(name string) {
	r.systemLine(name + " joined the chat")

	r.mu.Lock()
	changed := r.state != StateLiveActive
	if changed {
		r.state = StateLiveActive
		r.mode = chat.ModeLive
	}
	r.mu.Unlock()

	if changed {
		r.obs.StateChanged(StateLiveActive)
	}
}

// AgentChanged announces a transfer to a different agent.
func (r *Runtime) AgentChanged(name string) {
	r.systemLine("You are now chatting with " + name)
}

// SessionClosed ends the session from the agent side. The persisted
// session id is cleared so the next open starts fresh.
func (r *Runtime) SessionClosed() {
	r.systemLine("This chat has ended")

	r.mu.Lock()
	r.sessionID = ""
	r.mode = chat.ModeNone
	manager := r.manager
	r.manager = nil
	// An open pane falls back to the entry view so the visitor can start
	// over; a closed pane stays closed.
	changed := r.state != StateClosed && r.state != StateFormOrWelcome
	if changed {
		r.state = StateFormOrWelcome
	}
	r.mu.Unlock()

	if changed {
		r.obs.StateChanged(StateFormOrWelcome)
	}

	ctx := context.Background()
	if err := r.store.Session.Delete(ctx, storage.KeyChatSessionID); err != nil {
		logrus.Warnf("failed to clear chat session id: %v", err)
	}

	if manager != nil {
		go manager.Close()
	}
}

func (r *Runtime) systemLine(text string) {
	r.appendLocal(chat.Message{Role: chat.RoleSystem, Content: text})
}

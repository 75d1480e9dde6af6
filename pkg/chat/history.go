package chat

import (
	"sync"
	"time"
)

// History is the append-ordered message list for one session. Inbound
// messages carrying an id already present are discarded, which makes
// double delivery over realtime + polling idempotent. Messages without an
// id (locally authored, not yet echoed) are never deduplicated against.
type History struct {
	mu       sync.Mutex
	messages []Message
	seen     map[string]struct{}
	lastAt   time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{seen: make(map[string]struct{})}
}

// Append adds a message unless its id was already delivered. Returns true
// if the message was appended.
func (h *History) Append(msg Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.ID != "" {
		if _, dup := h.seen[msg.ID]; dup {
			return false
		}
		h.seen[msg.ID] = struct{}{}
	}

	h.messages = append(h.messages, msg)
	if msg.CreatedAt.After(h.lastAt) {
		h.lastAt = msg.CreatedAt
	}
	return true
}

// UpdateLast replaces the content of the most recent message with the
// given role. Used by the AI path to grow the in-progress message as
// tokens arrive. Returns false if no such message exists.
func (h *History) UpdateLast(role Role, content string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.messages) - 1; i >= 0; i-- {
		if h.messages[i].Role == role {
			h.messages[i].Content = content
			return true
		}
	}
	return false
}

// Messages returns a snapshot of the history in append order.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// LastMessageAt returns the newest server timestamp seen, used as the
// polling watermark.
func (h *History) LastMessageAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAt
}

// Tail returns up to n most recent messages in order.
func (h *History) Tail(n int) []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]Message, n)
	copy(out, h.messages[len(h.messages)-n:])
	return out
}

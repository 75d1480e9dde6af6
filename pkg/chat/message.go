// Package chat holds the conversation message model shared by the
// transport manager, the API client, and the conversation runtime.
package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleAI      Role = "ai"
	RoleAgent   Role = "agent"
	RoleSystem  Role = "system"
)

// Message is one conversation entry. ID is present for messages that
// originate server-side; visitor-authored messages created locally have no
// id until acknowledged, and local system messages never get one.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Mode is the conversation delivery mode.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeAI      Mode = "ai"
	ModeLive    Mode = "live"
	ModeHandoff Mode = "handoff"
)

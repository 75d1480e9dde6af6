package widget

// ChatMode selects how the conversation pane behaves for a project.
type ChatMode string

const (
	ModeLiveOnly ChatMode = "live_only"
	ModeAI       ChatMode = "ai"
	ModeAIFirst  ChatMode = "ai_first"
)

// OfflineBehavior selects the entry view when no agents are available.
type OfflineBehavior string

const (
	OfflineHideHandoff OfflineBehavior = "hide_handoff"
	OfflineAIOnly      OfflineBehavior = "ai_only"
	OfflineShowForm    OfflineBehavior = "show_form"
)

// FormField is one field of the pre-chat or handoff contact form.
type FormField struct {
	Name     string `json:"name" yaml:"name"`
	Label    string `json:"label" yaml:"label"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// QuickAction is a one-tap canned message shown on the welcome view.
type QuickAction struct {
	Label   string `json:"label" yaml:"label"`
	Message string `json:"message" yaml:"message"`
}

// Config is the widget configuration delivered by the configuration
// endpoint at page load. Immutable for the life of the runtime.
type Config struct {
	Enabled         bool            `json:"enabled" yaml:"enabled"`
	Theme           string          `json:"theme" yaml:"theme"`
	Position        string          `json:"position" yaml:"position"`
	ChatMode        ChatMode        `json:"chatMode" yaml:"chatMode"`
	AutoOpenDelay   int             `json:"autoOpenDelay" yaml:"autoOpenDelay"`
	FormFields      []FormField     `json:"formFields" yaml:"formFields"`
	OfflineBehavior OfflineBehavior `json:"offlineBehavior" yaml:"offlineBehavior"`
	Offline         bool            `json:"offline" yaml:"offline"`
	QuickActions    []QuickAction   `json:"quickActions" yaml:"quickActions"`
	HandoffEnabled  bool            `json:"handoffEnabled" yaml:"handoffEnabled"`
	GreetingText    string          `json:"greetingText" yaml:"greetingText"`
}

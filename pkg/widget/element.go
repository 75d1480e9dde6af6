package widget

// ElementType identifies the render shape of an engagement element.
type ElementType string

const (
	ElementPopup  ElementType = "popup"
	ElementBanner ElementType = "banner"
	ElementNudge  ElementType = "nudge"
	ElementToast  ElementType = "toast"
)

// Known reports whether the element type is one of the closed set.
func (t ElementType) Known() bool {
	switch t {
	case ElementPopup, ElementBanner, ElementNudge, ElementToast:
		return true
	}
	return false
}

// TriggerType identifies the behavioral condition that authorizes display.
type TriggerType string

const (
	TriggerTime      TriggerType = "time"
	TriggerScroll    TriggerType = "scroll"
	TriggerExit      TriggerType = "exit"
	TriggerClick     TriggerType = "click"
	TriggerImmediate TriggerType = "immediate"
)

// Known reports whether the trigger type is one of the closed set.
// Unknown trigger types are treated as immediate by the trigger engine.
func (t TriggerType) Known() bool {
	switch t {
	case TriggerTime, TriggerScroll, TriggerExit, TriggerClick, TriggerImmediate:
		return true
	}
	return false
}

// FrequencyCap limits how often an element may be re-shown to the same
// visitor.
type FrequencyCap string

const (
	CapNone    FrequencyCap = "none"
	CapSession FrequencyCap = "session"
	CapOnce    FrequencyCap = "once"
	CapDaily   FrequencyCap = "daily"
	CapWeekly  FrequencyCap = "weekly"
)

// Known reports whether the cap is one of the closed set. The gate fails
// open on unknown values.
func (c FrequencyCap) Known() bool {
	switch c {
	case CapNone, CapSession, CapOnce, CapDaily, CapWeekly:
		return true
	}
	return false
}

// TriggerConfig carries per-trigger-type parameters. Only the field
// matching the element's trigger type is meaningful.
type TriggerConfig struct {
	DelaySeconds  int     `json:"delaySeconds,omitempty" yaml:"delaySeconds,omitempty"`
	ScrollPercent float64 `json:"scrollPercent,omitempty" yaml:"scrollPercent,omitempty"`
	Selector      string  `json:"selector,omitempty" yaml:"selector,omitempty"`
}

// CTAAction is what an element's call-to-action does when clicked.
type CTAAction string

const (
	ActionOpenURL  CTAAction = "open_url"
	ActionOpenChat CTAAction = "open_chat"
	ActionDismiss  CTAAction = "dismiss"
)

// Element is one engagement element definition fetched for the page load.
// Immutable once fetched; owned by the trigger engine / compositor pairing.
type Element struct {
	ID           string        `json:"id" yaml:"id"`
	ElementType  ElementType   `json:"elementType" yaml:"elementType"`
	TriggerType  TriggerType   `json:"triggerType" yaml:"triggerType"`
	Trigger      TriggerConfig `json:"triggerConfig" yaml:"triggerConfig"`
	FrequencyCap FrequencyCap  `json:"frequencyCap" yaml:"frequencyCap"`
	Position     string        `json:"position,omitempty" yaml:"position,omitempty"`
	Theme        string        `json:"theme,omitempty" yaml:"theme,omitempty"`

	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	Body      string    `json:"body,omitempty" yaml:"body,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	CTALabel  string    `json:"ctaLabel,omitempty" yaml:"ctaLabel,omitempty"`
	CTAAction CTAAction `json:"ctaAction,omitempty" yaml:"ctaAction,omitempty"`
	CTAUrl    string    `json:"ctaUrl,omitempty" yaml:"ctaUrl,omitempty"`
}

package trigger

// Page events are fed by the host adapter observing the embedding page.
// The engine owns all interpretation: scroll depth percentage, the
// exit-intent threshold, and selector matching for click triggers.

// ScrollEvent reports the page scroll position.
type ScrollEvent struct {
	ScrollY        float64
	ScrollHeight   float64
	ViewportHeight float64
}

// Percent returns scroll depth as a percentage of the scrollable range.
func (e ScrollEvent) Percent() float64 {
	scrollable := e.ScrollHeight - e.ViewportHeight
	if scrollable <= 0 {
		return 100
	}
	return e.ScrollY / scrollable * 100
}

// PointerEvent reports the pointer's vertical position in the viewport.
type PointerEvent struct {
	Y float64
}

// ClickEvent reports a click on a watched selector. The host only needs to
// report selectors obtained from Selectors at initialization time.
type ClickEvent struct {
	Selector string
}

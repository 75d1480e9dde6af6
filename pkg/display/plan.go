package display

import (
	"time"

	"github.com/hatchboard/engage-runtime/pkg/widget"
)

const (
	// ToastAutoDismiss is how long a toast stays up before dismissing itself.
	ToastAutoDismiss = 5 * time.Second

	// ExitAnimationDuration is the delay between the hiding state and
	// detaching the node.
	ExitAnimationDuration = 300 * time.Millisecond
)

// Shape is the render shape of a displayed element.
type Shape string

const (
	ShapePopup  Shape = "popup"
	ShapeBanner Shape = "banner"
	ShapeNudge  Shape = "nudge"
	ShapeToast  Shape = "toast"
)

// Plan is the pure "what to render" decision for one element. The surface
// adapter turns it into host mutation; nothing in a Plan touches the host.
type Plan struct {
	Element  widget.Element
	Shape    Shape
	Position string

	// Overlay requests a click-outside overlay behind the element.
	Overlay bool

	// Closable requests an explicit close affordance.
	Closable bool

	// AutoDismissAfter is zero for shapes that stay until closed.
	AutoDismissAfter time.Duration
}

// PlanFor derives the render plan from the element type. Pure.
func PlanFor(el widget.Element) Plan {
	p := Plan{Element: el, Position: el.Position}

	switch el.ElementType {
	case widget.ElementPopup:
		p.Shape = ShapePopup
		p.Overlay = true
		p.Closable = true
		if p.Position == "" {
			p.Position = "center"
		}
	case widget.ElementBanner:
		p.Shape = ShapeBanner
		p.Closable = true
		if p.Position == "" {
			p.Position = "top"
		}
	case widget.ElementNudge:
		p.Shape = ShapeNudge
		p.Closable = true
		if p.Position == "" {
			p.Position = "bottom-right"
		}
	case widget.ElementToast:
		p.Shape = ShapeToast
		p.AutoDismissAfter = ToastAutoDismiss
		if p.Position == "" {
			p.Position = "bottom-left"
		}
	default:
		// Unknown shapes render least intrusively.
		p.Shape = ShapeToast
		p.AutoDismissAfter = ToastAutoDismiss
	}

	return p
}

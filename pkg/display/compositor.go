// Package display turns display requests into host presence. The decision
// side (render plans, cap re-check, single live instance) is pure; host
// mutation happens only through the Surface adapter.
package display

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/analytics"
	"github.com/hatchboard/engage-runtime/pkg/clock"
	"github.com/hatchboard/engage-runtime/pkg/metrics"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

// Surface is the host adapter that mutates the embedding page. Mount is
// expected to apply the entrance animation on its next paint frame.
type Surface interface {
	Mount(plan Plan) error
	SetHiding(elementID string)
	Unmount(elementID string)
}

// CapGate is the frequency-cap slice the compositor re-checks before
// mounting. Satisfied by *frequency.Gate.
type CapGate interface {
	ShouldShow(element widget.Element, now time.Time) bool
	MarkShown(ctx context.Context, element widget.Element, now time.Time) error
}

// Compositor enforces one live instance per element id and reports
// impression/click/close events.
type Compositor struct {
	surface Surface
	gate    CapGate
	sink    analytics.Sink
	clk     clock.Clock

	// openChat is invoked for a CTA whose action is open_chat.
	openChat func()

	mu   sync.Mutex
	live map[string]widget.Element
}

// NewCompositor creates a compositor over the given surface.
func NewCompositor(surface Surface, gate CapGate, sink analytics.Sink, clk clock.Clock, openChat func()) *Compositor {
	if openChat == nil {
		openChat = func() {}
	}
	return &Compositor{
		surface:  surface,
		gate:     gate,
		sink:     sink,
		clk:      clk,
		openChat: openChat,
		live:     make(map[string]widget.Element),
	}
}

// Display handles a display request: re-checks the cap gate (concurrent
// triggers race here), no-ops if an instance is already live, mounts,
// marks shown, and emits the impression.
func (c *Compositor) Display(ctx context.Context, el widget.Element) {
	now := c.clk.Now()
	if !c.gate.ShouldShow(el, now) {
		logrus.Debugf("element %s suppressed by frequency cap", el.ID)
		return
	}

	c.mu.Lock()
	if _, exists := c.live[el.ID]; exists {
		c.mu.Unlock()
		return
	}
	c.live[el.ID] = el
	c.mu.Unlock()

	plan := PlanFor(el)
	if err := c.surface.Mount(plan); err != nil {
		logrus.Errorf("failed to mount element %s: %v", el.ID, err)
		c.mu.Lock()
		delete(c.live, el.ID)
		c.mu.Unlock()
		return
	}

	if err := c.gate.MarkShown(ctx, el, now); err != nil {
		// The element is already visible; a ledger write failure only
		// weakens future capping.
		logrus.Warnf("failed to record display of %s: %v", el.ID, err)
	}

	metrics.ImpressionsTotal.WithLabelValues(string(el.ElementType)).Inc()
	c.sink.ElementEvent(el.ID, analytics.EventImpression)

	if plan.AutoDismissAfter > 0 {
		id := el.ID
		c.clk.AfterFunc(plan.AutoDismissAfter, func() {
			c.Remove(id)
		})
	}
}

// Remove transitions the element to its hiding state, then detaches it
// after the exit animation. Safe to call on a non-existent id.
func (c *Compositor) Remove(elementID string) {
	c.mu.Lock()
	if _, exists := c.live[elementID]; !exists {
		c.mu.Unlock()
		return
	}
	delete(c.live, elementID)
	c.mu.Unlock()

	c.surface.SetHiding(elementID)
	c.clk.AfterFunc(ExitAnimationDuration, func() {
		c.surface.Unmount(elementID)
	})
}

// IsLive reports whether an instance of the element is currently mounted.
func (c *Compositor) IsLive(elementID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live[elementID]
	return ok
}

// HandleClose reports the close affordance and removes the element.
// Overlay click-outside routes here as well.
func (c *Compositor) HandleClose(elementID string) {
	c.sink.ElementEvent(elementID, analytics.EventClose)
	c.Remove(elementID)
}

// HandleCTA reports a CTA click and performs its action.
func (c *Compositor) HandleCTA(elementID string) {
	c.mu.Lock()
	el, ok := c.live[elementID]
	c.mu.Unlock()
	if !ok {
		return
	}

	c.sink.ElementEvent(elementID, analytics.EventClick)

	switch el.CTAAction {
	case widget.ActionOpenChat:
		c.openChat()
	case widget.ActionOpenURL, widget.ActionDismiss:
		// open_url navigation is the host's job; both just dismiss here.
	}
	c.Remove(elementID)
}

// Package trigger arms behavioral triggers for engagement elements and
// fires each element's display request at most once per page load.
package trigger

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/clock"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

const (
	// DefaultDelaySeconds is used when a time trigger has no configured delay.
	DefaultDelaySeconds = 3

	// DefaultScrollPercent is used when a scroll trigger has no configured depth.
	DefaultScrollPercent = 50

	// ExitIntentThresholdPx is the viewport-top band that counts as exit
	// intent when the pointer enters it.
	ExitIntentThresholdPx = 10
)

// elementState is the per-element firing state machine. Exactly one
// transition to fired is permitted per page load.
type elementState int

const (
	stateArmed elementState = iota
	stateFired
)

// DisplayFunc receives the display request when an element fires.
type DisplayFunc func(element widget.Element)

// Engine registers listeners and timers per engagement element. All
// subscriptions for an element are drained the moment it fires, so a
// trigger source can never produce a second display request.
type Engine struct {
	clk     clock.Clock
	display DisplayFunc

	mu       sync.Mutex
	states   map[string]elementState
	elements map[string]widget.Element

	// subscription registry, drained on fire or teardown
	timers     map[string]clock.Timer
	scrollSubs map[string]float64 // element id → threshold percent
	exitSubs   map[string]struct{}
	clickSubs  map[string][]string // selector → element ids
}

// NewEngine creates an engine that invokes display when an element fires.
func NewEngine(clk clock.Clock, display DisplayFunc) *Engine {
	return &Engine{
		clk:        clk,
		display:    display,
		states:     make(map[string]elementState),
		elements:   make(map[string]widget.Element),
		timers:     make(map[string]clock.Timer),
		scrollSubs: make(map[string]float64),
		exitSubs:   make(map[string]struct{}),
		clickSubs:  make(map[string][]string),
	}
}

// Arm registers the trigger for each element. Immediate (and unknown)
// triggers fire synchronously during Arm.
func (e *Engine) Arm(elements []widget.Element) {
	var immediate []widget.Element

	e.mu.Lock()
	for _, el := range elements {
		if _, exists := e.states[el.ID]; exists {
			logrus.Warnf("element %s armed twice, ignoring", el.ID)
			continue
		}
		e.states[el.ID] = stateArmed
		e.elements[el.ID] = el

		switch el.TriggerType {
		case widget.TriggerTime:
			delay := el.Trigger.DelaySeconds
			if delay <= 0 {
				delay = DefaultDelaySeconds
			}
			id := el.ID
			e.timers[id] = e.clk.AfterFunc(time.Duration(delay)*time.Second, func() {
				e.fire(id)
			})
		case widget.TriggerScroll:
			threshold := el.Trigger.ScrollPercent
			if threshold <= 0 {
				threshold = DefaultScrollPercent
			}
			e.scrollSubs[el.ID] = threshold
		case widget.TriggerExit:
			e.exitSubs[el.ID] = struct{}{}
		case widget.TriggerClick:
			if el.Trigger.Selector == "" {
				logrus.Warnf("click trigger for element %s has no selector", el.ID)
				continue
			}
			e.clickSubs[el.Trigger.Selector] = append(e.clickSubs[el.Trigger.Selector], el.ID)
		case widget.TriggerImmediate:
			immediate = append(immediate, el)
		default:
			logrus.Warnf("unknown trigger type %q for element %s, firing immediately", el.TriggerType, el.ID)
			immediate = append(immediate, el)
		}
	}
	e.mu.Unlock()

	for _, el := range immediate {
		e.fire(el.ID)
	}
}

// Selectors returns the selectors the host must watch for click triggers.
// The set is fixed at Arm time; it is never re-queried.
func (e *Engine) Selectors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.clickSubs))
	for sel := range e.clickSubs {
		out = append(out, sel)
	}
	return out
}

// HandleScroll evaluates scroll-depth triggers against a scroll event.
func (e *Engine) HandleScroll(ev ScrollEvent) {
	percent := ev.Percent()

	e.mu.Lock()
	var due []string
	for id, threshold := range e.scrollSubs {
		if percent >= threshold {
			due = append(due, id)
		}
	}
	e.mu.Unlock()

	for _, id := range due {
		e.fire(id)
	}
}

// HandlePointer evaluates exit-intent triggers against a pointer event.
func (e *Engine) HandlePointer(ev PointerEvent) {
	if ev.Y >= ExitIntentThresholdPx {
		return
	}

	e.mu.Lock()
	due := make([]string, 0, len(e.exitSubs))
	for id := range e.exitSubs {
		due = append(due, id)
	}
	e.mu.Unlock()

	for _, id := range due {
		e.fire(id)
	}
}

// HandleClick evaluates click triggers against a click on a watched
// selector. Any one click fires every element bound to the selector.
func (e *Engine) HandleClick(ev ClickEvent) {
	e.mu.Lock()
	due := append([]string(nil), e.clickSubs[ev.Selector]...)
	e.mu.Unlock()

	for _, id := range due {
		e.fire(id)
	}
}

// Teardown drains every subscription and timer. Armed elements can no
// longer fire afterwards.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.scrollSubs = make(map[string]float64)
	e.exitSubs = make(map[string]struct{})
	e.clickSubs = make(map[string][]string)
	for id := range e.states {
		e.states[id] = stateFired
	}
}

// fire performs the armed → fired transition and drains the element's
// subscriptions. The display callback runs outside the lock.
func (e *Engine) fire(id string) {
	e.mu.Lock()
	if e.states[id] != stateArmed {
		e.mu.Unlock()
		return
	}
	e.states[id] = stateFired
	el := e.elements[id]
	e.drainLocked(id)
	e.mu.Unlock()

	logrus.Debugf("element %s fired via %s trigger", id, el.TriggerType)
	e.display(el)
}

func (e *Engine) drainLocked(id string) {
	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
	delete(e.scrollSubs, id)
	delete(e.exitSubs, id)
	for sel, ids := range e.clickSubs {
		kept := ids[:0]
		for _, other := range ids {
			if other != id {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(e.clickSubs, sel)
		} else {
			e.clickSubs[sel] = kept
		}
	}
}

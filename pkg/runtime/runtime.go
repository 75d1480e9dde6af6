// Package runtime boots the embedded widget for one page load and fans
// page events out to the trigger engine, the display compositor, and the
// conversation runtime.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/analytics"
	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/clock"
	"github.com/hatchboard/engage-runtime/pkg/conversation"
	"github.com/hatchboard/engage-runtime/pkg/display"
	"github.com/hatchboard/engage-runtime/pkg/frequency"
	"github.com/hatchboard/engage-runtime/pkg/identity"
	"github.com/hatchboard/engage-runtime/pkg/storage"
	"github.com/hatchboard/engage-runtime/pkg/transport"
	"github.com/hatchboard/engage-runtime/pkg/trigger"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

// ErrDisabled is returned by Init when the project's widget is turned off.
// The host renders nothing and retries on the next page load.
var ErrDisabled = errors.New("widget is disabled for this project")

// Options collect everything the host supplies.
type Options struct {
	Client   *api.Client
	Store    *storage.Store
	Surface  display.Surface
	Observer conversation.Observer

	PageURL    string
	DeviceType string

	// VisitorClass targets element delivery (e.g. "returning"). Optional.
	VisitorClass string

	// Clock defaults to the system clock.
	Clock clock.Clock

	// Transport tunes the conversation's delivery channels. Zero value
	// selects production defaults.
	Transport transport.Options
}

// Runtime is one page load's worth of widget: armed triggers, a display
// compositor, and the conversation pane.
type Runtime struct {
	cfg        *widget.Config
	ident      identity.Identity
	gate       *frequency.Gate
	tracker    *analytics.Tracker
	engine     *trigger.Engine
	compositor *display.Compositor
	conv       *conversation.Runtime
	elements   []widget.Element
}

// Init boots the runtime: configuration, identity, the frequency ledger,
// and the element catalog, in that order. Elements whose caps are already
// exhausted are not armed at all.
func Init(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}

	cfg, err := opts.Client.FetchConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to boot widget: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	ident, err := identity.Ensure(ctx, opts.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to establish visitor identity: %w", err)
	}

	gate, err := frequency.NewGate(ctx, opts.Store.Durable, opts.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load frequency ledger: %w", err)
	}

	tracker := analytics.NewTracker(opts.Client, ident.VisitorID, ident.SessionID, opts.PageURL, opts.DeviceType)

	conv := conversation.New(ctx, conversation.Params{
		Config:    cfg,
		Client:    opts.Client,
		Store:     opts.Store,
		Identity:  ident,
		Tracker:   tracker,
		Clock:     opts.Clock,
		Observer:  opts.Observer,
		PageURL:   opts.PageURL,
		Transport: opts.Transport,
	})

	r := &Runtime{
		cfg:     cfg,
		ident:   ident,
		gate:    gate,
		tracker: tracker,
		conv:    conv,
	}

	r.compositor = display.NewCompositor(opts.Surface, gate, tracker, opts.Clock, func() {
		conv.Open(context.Background())
	})
	r.engine = trigger.NewEngine(opts.Clock, func(el widget.Element) {
		r.compositor.Display(context.Background(), el)
	})

	elements, err := opts.Client.FetchElements(ctx, opts.PageURL, opts.DeviceType, opts.VisitorClass)
	if err != nil {
		// Engagement elements are an enhancement; chat still works.
		logrus.Warnf("failed to fetch engagement elements: %v", err)
		elements = nil
	}

	now := opts.Clock.Now()
	armed := elements[:0:0]
	for _, el := range elements {
		if gate.ShouldShow(el, now) {
			armed = append(armed, el)
		}
	}
	r.elements = armed
	r.engine.Arm(armed)

	tracker.WidgetEvent("widget_loaded", "", map[string]any{
		"elementCount": len(armed),
	})
	conv.MaybeAutoOpen(ctx)

	return r, nil
}

// Config returns the booted widget configuration.
func (r *Runtime) Config() *widget.Config { return r.cfg }

// Identity returns the visitor identity in effect.
func (r *Runtime) Identity() identity.Identity { return r.ident }

// Conversation returns the chat runtime.
func (r *Runtime) Conversation() *conversation.Runtime { return r.conv }

// ClickSelectors returns the CSS selectors the host must observe for
// click-triggered elements.
func (r *Runtime) ClickSelectors() []string { return r.engine.Selectors() }

// Page event fan-out. The host calls these from its event adapters.

func (r *Runtime) HandleScroll(ev trigger.ScrollEvent)   { r.engine.HandleScroll(ev) }
func (r *Runtime) HandlePointer(ev trigger.PointerEvent) { r.engine.HandlePointer(ev) }
func (r *Runtime) HandleClick(ev trigger.ClickEvent)     { r.engine.HandleClick(ev) }

// Element interaction fan-in, from the host's rendered elements.

func (r *Runtime) HandleElementClose(elementID string) { r.compositor.HandleClose(elementID) }
func (r *Runtime) HandleElementCTA(elementID string)   { r.compositor.HandleCTA(elementID) }

// OpenChat opens the conversation pane, as if a launcher was clicked.
func (r *Runtime) OpenChat(ctx context.Context) { r.conv.Open(ctx) }

// CloseChat closes the conversation pane.
func (r *Runtime) CloseChat() { r.conv.Close() }

// Teardown unloads the page: cancels pending triggers and tears chat
// transport down. Durable frequency state is already persisted.
func (r *Runtime) Teardown() {
	r.engine.Teardown()
	r.conv.Shutdown()
}

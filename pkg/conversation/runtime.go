// Package conversation is the top-level chat state machine: session
// lifecycle, delivery mode, message routing, and handoff between AI and
// human agents.
package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/analytics"
	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/clock"
	"github.com/hatchboard/engage-runtime/pkg/identity"
	"github.com/hatchboard/engage-runtime/pkg/metrics"
	"github.com/hatchboard/engage-runtime/pkg/storage"
	"github.com/hatchboard/engage-runtime/pkg/transport"
	"github.com/hatchboard/engage-runtime/pkg/widget"
)

const (
	// TypingDebounce clears the local typing signal after inactivity.
	TypingDebounce = 2 * time.Second

	// AgentTypingDecay clears a stale remote typing indicator.
	AgentTypingDecay = 3 * time.Second

	// AIHistoryLimit bounds the history sent with an AI turn.
	AIHistoryLimit = 10
)

// Params collects the runtime's collaborators.
type Params struct {
	Config    *widget.Config
	Client    *api.Client
	Store     *storage.Store
	Identity  identity.Identity
	Tracker   *analytics.Tracker
	Clock     clock.Clock
	Observer  Observer
	PageURL   string
	Transport transport.Options
}

// Runtime drives one visitor's conversation.
type Runtime struct {
	cfg     *widget.Config
	client  *api.Client
	store   *storage.Store
	ident   identity.Identity
	tracker *analytics.Tracker
	clk     clock.Clock
	obs     Observer
	pageURL string
	tOpts   transport.Options

	history *chat.History

	mu               sync.Mutex
	open             bool
	state            State
	mode             chat.Mode
	sessionID        string
	aiConversationID string
	manager          *transport.Manager
	typingActive     bool
	typingTimer      clock.Timer
	agentTypingTimer clock.Timer

	// sendMu serializes the network leg of sends; optimistic appends
	// happen before it is taken, so visual queueing cannot reorder them.
	sendMu sync.Mutex
}

// New creates a closed runtime, rehydrating any session persisted in the
// session bucket.
func New(ctx context.Context, p Params) *Runtime {
	if p.Observer == nil {
		p.Observer = NopObserver{}
	}
	if p.Clock == nil {
		p.Clock = clock.System()
	}

	r := &Runtime{
		cfg:     p.Config,
		client:  p.Client,
		store:   p.Store,
		ident:   p.Identity,
		tracker: p.Tracker,
		clk:     p.Clock,
		obs:     p.Observer,
		pageURL: p.PageURL,
		tOpts:   p.Transport,
		history: chat.NewHistory(),
		state:   StateClosed,
		mode:    chat.ModeNone,
	}

	if id, ok, err := p.Store.Session.Get(ctx, storage.KeyChatSessionID); err == nil && ok {
		r.sessionID = id
	}
	if id, ok, err := p.Store.Session.Get(ctx, storage.KeyAIConversationID); err == nil && ok {
		r.aiConversationID = id
	}

	return r
}

// History returns the runtime's message history for rendering.
func (r *Runtime) History() *chat.History {
	return r.history
}

// State returns the current pane state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Mode returns the current delivery mode.
func (r *Runtime) Mode() chat.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SessionID returns the durable chat session id, empty before creation.
func (r *Runtime) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// entryState picks the view shown when the pane opens: an existing session
// wins, then the offline-hours policy, then the configured chat mode.
func entryState(cfg *widget.Config, hasSession bool) (State, chat.Mode) {
	if hasSession {
		return StateLiveActive, chat.ModeLive
	}

	if cfg.Offline {
		switch cfg.OfflineBehavior {
		case widget.OfflineHideHandoff, widget.OfflineAIOnly:
			return StateFormOrWelcome, chat.ModeAI
		case widget.OfflineShowForm:
			return StateFormOrWelcome, chat.ModeNone
		}
	}

	switch cfg.ChatMode {
	case widget.ModeLiveOnly:
		return StateFormOrWelcome, chat.ModeNone
	case widget.ModeAI, widget.ModeAIFirst:
		return StateFormOrWelcome, chat.ModeAI
	default:
		return StateFormOrWelcome, chat.ModeAI
	}
}

// Open opens the conversation pane. Reopening reuses the existing session
// and history; opening with a persisted session id resubscribes transport
// and backfills history through the polling bridge.
func (r *Runtime) Open(ctx context.Context) {
	r.mu.Lock()
	if r.open {
		r.mu.Unlock()
		return
	}
	r.open = true

	state, mode := entryState(r.cfg, r.sessionID != "")
	r.state = state
	r.mode = mode

	needTransport := r.sessionID != ""
	sessionID := r.sessionID
	manager := r.manager
	r.mu.Unlock()

	if needTransport {
		if manager == nil {
			r.attachTransport(ctx, sessionID)
		} else {
			// Socket may still be alive from before Close; polling only
			// resumes when it is not.
			manager.StartPolling()
		}
	}

	r.tracker.WidgetEvent("widget_opened", sessionID, nil)
	r.obs.StateChanged(state)
}

// Close closes the pane: polling stops and typing timers detach, but the
// realtime socket persists to catch late agent replies. History and the
// session survive for reopening.
func (r *Runtime) Close() {
	r.mu.Lock()
	if !r.open {
		r.mu.Unlock()
		return
	}
	r.open = false
	r.state = StateClosed
	manager := r.manager
	r.stopTypingTimersLocked()
	r.mu.Unlock()

	if manager != nil {
		manager.StopPolling()
	}
	r.obs.StateChanged(StateClosed)
}

// Shutdown tears down all transport, socket included.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	manager := r.manager
	r.manager = nil
	r.stopTypingTimersLocked()
	r.mu.Unlock()

	if manager != nil {
		manager.Close()
	}
}

// MaybeAutoOpen schedules the configured auto-open, guarded by the
// once-per-session flag in the session bucket.
func (r *Runtime) MaybeAutoOpen(ctx context.Context) {
	if r.cfg.AutoOpenDelay <= 0 {
		return
	}
	if _, ok, err := r.store.Session.Get(ctx, storage.KeyAutoOpened); err != nil || ok {
		return
	}

	r.clk.AfterFunc(time.Duration(r.cfg.AutoOpenDelay)*time.Second, func() {
		if _, ok, err := r.store.Session.Get(ctx, storage.KeyAutoOpened); err != nil || ok {
			return
		}
		if err := r.store.Session.Set(ctx, storage.KeyAutoOpened, "1"); err != nil {
			logrus.Warnf("failed to persist auto-open flag: %v", err)
		}
		r.Open(ctx)
	})
}

// SubmitForm creates a session from the pre-chat (or offline) form and
// enters live mode.
func (r *Runtime) SubmitForm(ctx context.Context, name, email, phone, initialMessage string) error {
	if initialMessage != "" {
		r.appendLocal(chat.Message{Role: chat.RoleVisitor, Content: initialMessage})
	}

	sessionID, err := r.client.CreateSession(ctx, api.CreateSessionRequest{
		ProjectID:      r.client.ProjectID(),
		VisitorID:      r.ident.VisitorID,
		SessionID:      r.ident.SessionID,
		VisitorName:    name,
		VisitorEmail:   email,
		VisitorPhone:   phone,
		InitialMessage: initialMessage,
		PageURL:        r.pageURL,
	})
	if err != nil {
		r.failLocal("We couldn't start your chat. Please try again.", err)
		return err
	}

	r.adoptSession(ctx, sessionID, chat.ModeLive, StateLiveActive)
	r.tracker.WidgetEvent("form_submitted", sessionID, nil)
	return nil
}

// RequestHandoff transitions an AI conversation to a human agent. The
// handoff session carries contact details plus a summary of the prior AI
// turns.
func (r *Runtime) RequestHandoff(ctx context.Context, name, email, phone string) error {
	r.mu.Lock()
	aiConvID := r.aiConversationID
	r.mu.Unlock()

	sessionID, err := r.client.CreateSession(ctx, api.CreateSessionRequest{
		ProjectID:        r.client.ProjectID(),
		VisitorID:        r.ident.VisitorID,
		SessionID:        r.ident.SessionID,
		VisitorName:      name,
		VisitorEmail:     email,
		VisitorPhone:     phone,
		ChatMode:         string(chat.ModeHandoff),
		AIConversationID: aiConvID,
		AISummary:        HandoffSummary(r.history),
		PageURL:          r.pageURL,
	})
	if err != nil {
		r.failLocal("We couldn't reach an agent. Please try again.", err)
		return err
	}

	r.adoptSession(ctx, sessionID, chat.ModeHandoff, StateLiveActive)
	r.tracker.WidgetEvent("handoff_requested", sessionID, nil)
	return nil
}

// BeginHandoffForm moves the pane to the handoff contact form. Driven by
// explicit visitor action or a handoffRequested flag from an AI turn.
func (r *Runtime) BeginHandoffForm() {
	r.mu.Lock()
	r.state = StateHandoffPend
	r.mu.Unlock()
	r.obs.StateChanged(StateHandoffPend)
}

// adoptSession persists the created session id and subscribes transport.
func (r *Runtime) adoptSession(ctx context.Context, sessionID string, mode chat.Mode, state State) {
	r.mu.Lock()
	r.sessionID = sessionID
	r.mode = mode
	r.state = state
	r.mu.Unlock()

	if err := r.store.Session.Set(ctx, storage.KeyChatSessionID, sessionID); err != nil {
		logrus.Warnf("failed to persist chat session id: %v", err)
	}

	r.attachTransport(ctx, sessionID)
	r.obs.StateChanged(state)
}

func (r *Runtime) attachTransport(ctx context.Context, sessionID string) {
	manager := transport.NewManager(r.client, r.history, r, sessionID, r.ident.VisitorID, r.tOpts)

	r.mu.Lock()
	old := r.manager
	r.manager = manager
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	manager.Start(ctx)
}

// Transport returns the live transport manager, nil before a session
// exists.
func (r *Runtime) Transport() *transport.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manager
}

// Send routes a visitor message by the current mode. The message is
// appended to local history before any network round-trip; concurrent
// sends serialize on the network leg only, so append order is stable.
func (r *Runtime) Send(ctx context.Context, content string) error {
	if content == "" {
		return nil
	}

	r.mu.Lock()
	mode := r.mode
	sessionID := r.sessionID
	r.mu.Unlock()

	r.appendLocal(chat.Message{Role: chat.RoleVisitor, Content: content})
	r.clearTyping()

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	switch mode {
	case chat.ModeAI:
		return r.aiTurn(ctx, content)
	case chat.ModeLive, chat.ModeHandoff:
		if sessionID == "" {
			return fmt.Errorf("no session to send into")
		}
		if err := r.client.SendLiveMessage(ctx, sessionID, content); err != nil {
			r.failLocal("Your message couldn't be sent. Please try again.", err)
			return err
		}
		return nil
	default:
		return fmt.Errorf("conversation is not active")
	}
}

// SendQuickAction sends a configured quick action as a visitor message.
func (r *Runtime) SendQuickAction(ctx context.Context, qa widget.QuickAction) error {
	return r.Send(ctx, qa.Message)
}

// VisitorTyping debounces the local typing signal: emitted immediately on
// input, cleared after two seconds of inactivity. Dropped silently when no
// realtime channel is connected.
func (r *Runtime) VisitorTyping() {
	r.mu.Lock()
	manager := r.manager
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
	wasActive := r.typingActive
	r.typingActive = true
	r.typingTimer = r.clk.AfterFunc(TypingDebounce, r.clearTyping)
	r.mu.Unlock()

	if manager != nil && !wasActive {
		manager.SendTyping(true)
	}
}

func (r *Runtime) clearTyping() {
	r.mu.Lock()
	manager := r.manager
	wasActive := r.typingActive
	r.typingActive = false
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.mu.Unlock()

	if manager != nil && wasActive {
		manager.SendTyping(false)
	}
}

func (r *Runtime) stopTypingTimersLocked() {
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.typingActive = false
	if r.agentTypingTimer != nil {
		r.agentTypingTimer.Stop()
		r.agentTypingTimer = nil
	}
}

// appendLocal appends a locally authored message and notifies the host.
func (r *Runtime) appendLocal(msg chat.Message) {
	r.history.Append(msg)
	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	r.obs.MessagesChanged()
}

// failLocal surfaces a conversation-critical failure as a system message;
// input stays enabled for retry.
func (r *Runtime) failLocal(text string, cause error) {
	logrus.Errorf("%s: %v", text, cause)
	r.appendLocal(chat.Message{Role: chat.RoleSystem, Content: text})
}

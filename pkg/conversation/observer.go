package conversation

// State is the conversation pane's lifecycle state.
type State string

const (
	StateClosed        State = "closed"
	StateFormOrWelcome State = "formOrWelcome"
	StateAIActive      State = "aiActive"
	StateLiveActive    State = "liveActive"
	StateHandoffPend   State = "handoffPending"
)

// Observer receives UI-relevant changes from the runtime. The host renders
// from these notifications plus the history snapshot. Calls may arrive from
// timer, polling, or socket goroutines.
type Observer interface {
	// StateChanged fires on every pane state transition.
	StateChanged(state State)

	// MessagesChanged fires whenever the history snapshot changed.
	MessagesChanged()

	// AgentTypingChanged reports the remote typing indicator.
	AgentTypingChanged(typing bool)

	// AITurnStarted shows the "AI is typing" affordance and puts the
	// chat-open affordance into its attention state.
	AITurnStarted()

	// AITurnFinished clears both, and is guaranteed to fire exactly once
	// per started turn, including on error.
	AITurnFinished()
}

// NopObserver is an Observer that ignores everything.
type NopObserver struct{}

func (NopObserver) StateChanged(State)       {}
func (NopObserver) MessagesChanged()         {}
func (NopObserver) AgentTypingChanged(bool)  {}
func (NopObserver) AITurnStarted()           {}
func (NopObserver) AITurnFinished()          {}

package conversation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/chat"
	"github.com/hatchboard/engage-runtime/pkg/storage"
	"github.com/hatchboard/engage-runtime/pkg/stream"
)

const (
	// HandoffSummaryUtterances is how many visitor turns the handoff
	// summary carries.
	HandoffSummaryUtterances = 5

	// HandoffSummaryMaxChars hard-caps the summary length.
	HandoffSummaryMaxChars = 500
)

// aiTurn runs one AI exchange: post the visitor message plus recent
// history, then replay the streamed events into the growing AI message.
// AITurnFinished is guaranteed even on error.
func (r *Runtime) aiTurn(ctx context.Context, content string) error {
	r.mu.Lock()
	entered := r.state != StateAIActive
	if entered {
		r.state = StateAIActive
	}
	convID := r.aiConversationID
	r.mu.Unlock()

	if entered {
		r.obs.StateChanged(StateAIActive)
	}

	r.obs.AITurnStarted()
	defer r.obs.AITurnFinished()

	// The outbound history excludes the message just appended.
	history := r.history.Tail(AIHistoryLimit + 1)
	if n := len(history); n > 0 && history[n-1].Role == chat.RoleVisitor && history[n-1].Content == content {
		history = history[:n-1]
	}

	body, err := r.client.AITurn(ctx, api.AITurnRequest{
		ProjectID: r.client.ProjectID(),
		SessionID: convID,
		Message:   content,
		History:   history,
		Source:    "widget",
		PageURL:   r.pageURL,
	})
	if err != nil {
		r.failLocal("The assistant is unavailable right now. Please try again.", err)
		return err
	}

	var (
		replyStarted bool
		reply        strings.Builder
	)
	for _, ev := range stream.Parse(body) {
		switch ev.Type {
		case stream.EventStart:
			if ev.ConversationID != "" {
				r.adoptAIConversation(ctx, ev.ConversationID)
			}
		case stream.EventToken:
			reply.WriteString(ev.Token)
			if !replyStarted {
				replyStarted = true
				r.appendLocal(chat.Message{Role: chat.RoleAI, Content: reply.String()})
			} else {
				r.history.UpdateLast(chat.RoleAI, reply.String())
				r.obs.MessagesChanged()
			}
		case stream.EventComplete:
			if ev.HandoffRequested && r.cfg.HandoffEnabled {
				logrus.Infof("AI requested handoff: %s", ev.HandoffReason)
				r.BeginHandoffForm()
			}
		}
	}

	if !replyStarted {
		r.failLocal("The assistant didn't respond. Please try again.", nil)
	}
	return nil
}

// adoptAIConversation persists the AI conversation id so later turns and a
// handoff reference the same thread.
func (r *Runtime) adoptAIConversation(ctx context.Context, id string) {
	r.mu.Lock()
	if r.aiConversationID == id {
		r.mu.Unlock()
		return
	}
	r.aiConversationID = id
	r.mu.Unlock()

	if err := r.store.Session.Set(ctx, storage.KeyAIConversationID, id); err != nil {
		logrus.Warnf("failed to persist AI conversation id: %v", err)
	}
}

// HandoffSummary condenses an AI conversation for the receiving agent: the
// last few visitor utterances, oldest first, capped in length.
func HandoffSummary(history *chat.History) string {
	var utterances []string
	for _, msg := range history.Messages() {
		if msg.Role == chat.RoleVisitor && msg.Content != "" {
			utterances = append(utterances, msg.Content)
		}
	}
	if len(utterances) > HandoffSummaryUtterances {
		utterances = utterances[len(utterances)-HandoffSummaryUtterances:]
	}

	summary := strings.Join(utterances, "\n")
	if len(summary) > HandoffSummaryMaxChars {
		cut := HandoffSummaryMaxChars
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut]
	}
	return summary
}

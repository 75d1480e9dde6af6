// Package stream decodes the AI-turn response body: a server-sent-event
// style sequence of "event:" / "data:" line pairs received as one complete
// document.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/metrics"
)

// EventType is the closed set of stream event types.
type EventType string

const (
	// EventStart opens a turn and carries the conversation id to persist.
	EventStart EventType = "start"
	// EventToken carries one incremental content fragment.
	EventToken EventType = "token"
	// EventComplete closes a turn with terminal metadata.
	EventComplete EventType = "complete"
)

// Event is one decoded stream event. Only the fields for its type are set.
type Event struct {
	Type EventType

	// start
	ConversationID string

	// token
	Token string

	// complete
	HandoffRequested bool
	HandoffReason    string
}

type startPayload struct {
	ConversationID string `json:"conversationId"`
}

type tokenPayload struct {
	Content string `json:"content"`
}

type completePayload struct {
	HandoffRequested bool   `json:"handoffRequested"`
	Reason           string `json:"reason"`
}

// Parse decodes the body into ordered events. Malformed data lines are
// skipped with a logged warning; Parse never fails on a single bad line.
func Parse(body []byte) []Event {
	var events []Event
	var pending EventType

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "event:"):
			pending = EventType(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			ev, ok := decode(pending, data)
			if !ok {
				continue
			}
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		logrus.Warnf("stream body truncated: %v", err)
	}

	return events
}

func decode(typ EventType, data string) (Event, bool) {
	switch typ {
	case EventStart:
		var p startPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return skip(typ, err)
		}
		return Event{Type: EventStart, ConversationID: p.ConversationID}, true
	case EventToken:
		var p tokenPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return skip(typ, err)
		}
		return Event{Type: EventToken, Token: p.Content}, true
	case EventComplete:
		var p completePayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return skip(typ, err)
		}
		return Event{Type: EventComplete, HandoffRequested: p.HandoffRequested, HandoffReason: p.Reason}, true
	default:
		logrus.Warnf("skipping data for unknown stream event type %q", typ)
		metrics.StreamParseErrorsTotal.Inc()
		return Event{}, false
	}
}

func skip(typ EventType, err error) (Event, bool) {
	logrus.Warnf("skipping malformed %s data line: %v", typ, err)
	metrics.StreamParseErrorsTotal.Inc()
	return Event{}, false
}

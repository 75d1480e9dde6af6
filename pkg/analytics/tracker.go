// Package analytics reports widget and element events to the ingestion
// collaborator. Every call is fire-and-forget: a transient failure here is
// never allowed to affect the runtime.
package analytics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hatchboard/engage-runtime/pkg/api"
	"github.com/hatchboard/engage-runtime/pkg/metrics"
)

// ElementEventType is one of the closed set of element interaction events.
type ElementEventType string

const (
	EventImpression ElementEventType = "impression"
	EventClick      ElementEventType = "click"
	EventClose      ElementEventType = "close"
)

// Sink receives element interaction events. The compositor depends on this
// interface so decision logic can be tested without a network.
type Sink interface {
	ElementEvent(elementID string, eventType ElementEventType)
}

// Tracker reports events through the backend API client.
type Tracker struct {
	client     *api.Client
	visitorID  string
	sessionID  string
	pageURL    string
	deviceType string
}

// NewTracker creates a tracker bound to a visitor and page context.
func NewTracker(client *api.Client, visitorID, sessionID, pageURL, deviceType string) *Tracker {
	return &Tracker{
		client:     client,
		visitorID:  visitorID,
		sessionID:  sessionID,
		pageURL:    pageURL,
		deviceType: deviceType,
	}
}

// ElementEvent implements Sink. Errors are logged at debug and discarded.
func (t *Tracker) ElementEvent(elementID string, eventType ElementEventType) {
	metrics.ElementEventsTotal.WithLabelValues(string(eventType)).Inc()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := t.client.TrackElementEvent(ctx, api.ElementEvent{
			ElementID:  elementID,
			EventType:  string(eventType),
			PageURL:    t.pageURL,
			VisitorID:  t.visitorID,
			SessionID:  t.sessionID,
			DeviceType: t.deviceType,
		})
		if err != nil {
			logrus.Debugf("element event %s/%s dropped: %v", elementID, eventType, err)
		}
	}()
}

// WidgetEvent reports a generic lifecycle event (widget_loaded,
// widget_opened, form_submitted, ...).
func (t *Tracker) WidgetEvent(eventType, chatSessionID string, metadata map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := t.client.TrackWidgetEvent(ctx, api.WidgetEvent{
			ProjectID: t.client.ProjectID(),
			SessionID: chatSessionID,
			EventType: eventType,
			PageURL:   t.pageURL,
			VisitorID: t.visitorID,
			Metadata:  metadata,
		})
		if err != nil {
			logrus.Debugf("widget event %s dropped: %v", eventType, err)
		}
	}()
}

// Package metrics defines the runtime's Prometheus collectors. They are
// registered by the metrics server and incremented at the call sites.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ImpressionsTotal counts engagement element displays by render shape.
	ImpressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_impressions_total",
			Help: "Total number of engagement element impressions",
		},
		[]string{"element_type"},
	)

	// ElementEventsTotal counts interaction events on displayed elements.
	ElementEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_element_events_total",
			Help: "Total number of element interaction events",
		},
		[]string{"event_type"},
	)

	// MessagesTotal counts conversation messages appended to history.
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_messages_total",
			Help: "Total number of conversation messages by role",
		},
		[]string{"role"},
	)

	// TransportSwitchesTotal counts activations of a delivery channel.
	TransportSwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_transport_switches_total",
			Help: "Total number of transport channel activations",
		},
		[]string{"channel"},
	)

	// StreamParseErrorsTotal counts malformed lines skipped by the AI
	// stream parser.
	StreamParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_stream_parse_errors_total",
			Help: "Total number of malformed AI stream lines skipped",
		},
	)
)

// Register registers all runtime collectors on the given registry.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		ImpressionsTotal,
		ElementEventsTotal,
		MessagesTotal,
		TransportSwitchesTotal,
		StreamParseErrorsTotal,
	)
}

// Package metrics provides Prometheus instrumentation for the event
// pipeline and the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts pipeline outcomes per channel. Outcome is one
	// of processed, duplicate, invalid, deadlettered.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_events_total",
			Help: "Inbound events by channel and processing outcome",
		},
		[]string{"channel", "outcome"},
	)

	// EventDuration tracks full pipeline latency per event.
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskd_event_duration_seconds",
			Help:    "End-to-end event processing duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"channel"},
	)

	// EscalationsTotal counts escalation decisions by route and reason.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_escalations_total",
			Help: "Escalations by target route and triggering reason",
		},
		[]string{"route", "reason"},
	)

	// TicketTransitionsTotal counts state machine moves.
	TicketTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_ticket_transitions_total",
			Help: "Ticket status transitions",
		},
		[]string{"from", "to"},
	)

	// AgentRequestsTotal counts responder calls by provider and status.
	AgentRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_agent_requests_total",
			Help: "Responder draft calls by provider and status",
		},
		[]string{"provider", "status"},
	)

	// AgentRequestDuration tracks responder call latency.
	AgentRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskd_agent_request_duration_seconds",
			Help:    "Responder draft call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"provider"},
	)

	// KBLookupsTotal counts knowledge-base lookups the responder reported.
	KBLookupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deskd_kb_lookups_total",
			Help: "Knowledge-base lookups reported by the responder",
		},
	)

	// DeadLettersTotal counts parked events by error kind.
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_dead_letters_total",
			Help: "Events parked on the dead-letter topic by error kind",
		},
		[]string{"kind"},
	)

	// HTTPRequestsTotal counts gateway requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deskd_http_requests_total",
			Help: "Gateway HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks gateway request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deskd_http_request_duration_seconds",
			Help:    "Gateway HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// WSClients tracks connected chat websocket clients.
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deskd_ws_clients",
			Help: "Connected chat websocket clients",
		},
	)
)

// RecordEvent records one pipeline outcome with its duration.
func RecordEvent(channel, outcome string, seconds float64) {
	EventsTotal.WithLabelValues(channel, outcome).Inc()
	EventDuration.WithLabelValues(channel).Observe(seconds)
}

// RecordEscalation records one escalation decision.
func RecordEscalation(route, reason string) {
	EscalationsTotal.WithLabelValues(route, reason).Inc()
}

// RecordTransition records one ticket state change.
func RecordTransition(from, to string) {
	TicketTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordAgentRequest records one responder call.
func RecordAgentRequest(provider, status string, seconds float64, kbQueried bool) {
	AgentRequestsTotal.WithLabelValues(provider, status).Inc()
	AgentRequestDuration.WithLabelValues(provider).Observe(seconds)
	if kbQueried {
		KBLookupsTotal.Inc()
	}
}

// RecordDeadLetter records one parked event.
func RecordDeadLetter(kind string) {
	DeadLettersTotal.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records one gateway request.
func RecordHTTPRequest(method, path, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corelay_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	ModerationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corelay_moderation_total", Help: "Moderation outcomes"},
		[]string{"result"},
	)
	ModerationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "corelay_moderation_latency_seconds", Help: "Moderation engine latency"},
	)
	TwilioSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "twilio_send_total", Help: "Twilio send outcomes"},
		[]string{"result", "http_status"},
	)
	TwilioLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "twilio_send_latency_seconds", Help: "Twilio send latency"},
	)
	RelayOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corelay_relay_outcomes_total", Help: "Final message statuses"},
		[]string{"status"},
	)
	PairRegistrations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "corelay_pair_registrations_total", Help: "Parent pairs registered"},
	)
	OutcomeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "corelay_outcome_events_total", Help: "SQS outcome event publishes"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, ModerationRequests, ModerationLatency,
		TwilioSend, TwilioLatency, RelayOutcomes, PairRegistrations, OutcomeEvents)
}

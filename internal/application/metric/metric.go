package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request handling time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	chatSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Number of live chat websocket subscriptions.",
		},
	)

	signalSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_sessions",
			Help: "Number of live signaling websocket sessions.",
		},
	)

	chatMessagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages persisted and broadcast.",
		},
	)

	signalEnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_envelopes_total",
			Help: "Signaling envelopes forwarded, by type and delivery outcome.",
		},
		[]string{"type", "delivered"},
	)

	callPushFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "call_push_fallbacks_total",
			Help: "Incoming-call pushes sent because the target had no live signaling session.",
		},
	)
)

// RecordHTTPMetrics records one handled HTTP request.
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncChatSessions() { chatSessions.Inc() }
func DecChatSessions() { chatSessions.Dec() }

func IncSignalSessions() { signalSessions.Inc() }
func DecSignalSessions() { signalSessions.Dec() }

func ObserveChatMessage() { chatMessagesTotal.Inc() }

func ObserveSignalEnvelope(envelopeType string, delivered bool) {
	outcome := "false"
	if delivered {
		outcome = "true"
	}
	signalEnvelopesTotal.WithLabelValues(envelopeType, outcome).Inc()
}

func ObserveCallPushFallback() { callPushFallbacksTotal.Inc() }

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yajanus",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Requests sent to the gateway.",
		},
		[]string{"mode", "kind", "outcome"},
	)
	pollsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "yajanus",
			Subsystem: "longpoll",
			Name:      "in_flight",
			Help:      "Long-poll requests currently outstanding.",
		},
		[]string{"mode"},
	)
	pollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yajanus",
			Subsystem: "longpoll",
			Name:      "errors_total",
			Help:      "Failed long-poll requests.",
		},
		[]string{"mode"},
	)
	keepalives = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yajanus",
			Subsystem: "session",
			Name:      "keepalives_total",
			Help:      "Keepalives sent, by outcome.",
		},
		[]string{"mode", "outcome"},
	)
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yajanus",
			Subsystem: "gateway",
			Name:      "events_total",
			Help:      "Events dispatched from gateway frames.",
		},
		[]string{"mode", "kind"},
	)
	pendingTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "yajanus",
			Subsystem: "gateway",
			Name:      "pending_transactions",
			Help:      "Transactions waiting for a reply.",
		},
	)
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "yajanus",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Requests forwarded by the long-poll proxy.",
		},
		[]string{"method", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requests, pollsInFlight, pollErrors, keepalives, events, pendingTransactions, proxyRequests)
	})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordRequest(mode, kind string, err error) {
	RegisterMetrics()
	requests.WithLabelValues(mode, kind, outcome(err)).Inc()
}

func PollStarted(mode string) {
	RegisterMetrics()
	pollsInFlight.WithLabelValues(mode).Inc()
}

func PollFinished(mode string, err error) {
	RegisterMetrics()
	pollsInFlight.WithLabelValues(mode).Dec()
	if err != nil {
		pollErrors.WithLabelValues(mode).Inc()
	}
}

func RecordKeepalive(mode string, err error) {
	RegisterMetrics()
	keepalives.WithLabelValues(mode, outcome(err)).Inc()
}

func RecordEvent(mode, kind string) {
	RegisterMetrics()
	events.WithLabelValues(mode, kind).Inc()
}

func TransactionOpened() {
	RegisterMetrics()
	pendingTransactions.Inc()
}

func TransactionClosed() {
	RegisterMetrics()
	pendingTransactions.Dec()
}

func RecordProxyRequest(method, status string) {
	RegisterMetrics()
	proxyRequests.WithLabelValues(method, status).Inc()
}

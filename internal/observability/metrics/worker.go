package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics instruments the NATS ask responder.
type WorkerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestInFlight prometheus.Gauge

	answers answerCollectors
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpps",
			Subsystem: "worker",
			Name:      "ask_requests_total",
			Help:      "Total ask requests handled by status.",
		},
		[]string{"service", "status"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rpps",
			Subsystem: "worker",
			Name:      "ask_in_flight",
			Help:      "Number of in-flight ask requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answers := newAnswerCollectors()

	registry.MustRegister(requestTotal, requestInFlight)
	registry.MustRegister(answers.collectors()...)

	return &WorkerMetrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestInFlight: requestInFlight,
		answers:         answers,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRequest() {
	m.requestInFlight.Inc()
}

// FinishRequest records one handled question; failed outcomes count as errors.
func (m *WorkerMetrics) FinishRequest(service, route, outcome string, selected int, duration time.Duration) {
	m.requestInFlight.Dec()

	status := "success"
	if outcome == "failed" {
		status = "error"
	}
	m.requestTotal.WithLabelValues(service, status).Inc()
	m.answers.observe(service, route, outcome, selected, duration)
}

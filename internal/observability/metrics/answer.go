package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// answerCollectors are shared by the HTTP server and the NATS worker.
type answerCollectors struct {
	routesTotal       *prometheus.CounterVec
	selectedDocuments *prometheus.HistogramVec
	duration          *prometheus.HistogramVec
}

func newAnswerCollectors() answerCollectors {
	return answerCollectors{
		routesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rpps",
				Subsystem: "answer",
				Name:      "routes_total",
				Help:      "Answered questions by route and outcome.",
			},
			[]string{"service", "route", "outcome"},
		),
		selectedDocuments: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rpps",
				Subsystem: "answer",
				Name:      "selected_documents",
				Help:      "Documents placed in the completion context per question.",
				Buckets:   []float64{0, 1, 2, 4, 6, 8, 12, 20, 30, 40},
			},
			[]string{"service", "route"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rpps",
				Subsystem: "answer",
				Name:      "duration_seconds",
				Help:      "End-to-end answer duration in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 90},
			},
			[]string{"service", "route"},
		),
	}
}

func (c answerCollectors) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.routesTotal, c.selectedDocuments, c.duration}
}

func (c answerCollectors) observe(service, route, outcome string, selected int, duration time.Duration) {
	if route == "" {
		route = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	c.routesTotal.WithLabelValues(service, route, outcome).Inc()
	c.selectedDocuments.WithLabelValues(service, route).Observe(float64(selected))
	c.duration.WithLabelValues(service, route).Observe(duration.Seconds())
}

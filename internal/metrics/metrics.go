// Package metrics groups the Prometheus instruments exported by the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	Turns             *prometheus.CounterVec
	Blocked           *prometheus.CounterVec
	ProviderFailures  prometheus.Counter
	CompletionLatency prometheus.Histogram
	Commands          *prometheus.CounterVec

	registry *prometheus.Registry
}

// New builds the instruments on a private registry so several instances
// (one per test) never collide.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by role and front-end.",
		}, []string{"role", "source"}),
		Blocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_messages_total",
			Help:      "Messages refused by the safety gate, by policy class.",
		}, []string{"class"}),
		ProviderFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Completion calls that failed and were answered with the fallback reply.",
		}),
		CompletionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_ms",
			Help:      "Latency of completion provider calls in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Bot commands handled, by command name.",
		}, []string{"command"}),
	}
}

func (m *Metrics) ObserveCompletion(d time.Duration) {
	m.CompletionLatency.Observe(float64(d.Milliseconds()))
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

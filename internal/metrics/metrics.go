// Package metrics tracks simulation health, both as an in-process time
// series for the dashboard and as Prometheus metrics for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for one server process.
type Metrics struct {
	registry *prometheus.Registry

	ExperiencesRecorded prometheus.Counter
	Consolidations      prometheus.Counter
	TicksProcessed      prometheus.Counter
	WSClients           prometheus.Gauge
	WormFitness         *prometheus.GaugeVec
	WormEnergy          *prometheus.GaugeVec
	Decisions           *prometheus.CounterVec
}

// New creates a registry with process collectors and the worm instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ExperiencesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "worm_experiences_recorded_total",
			Help: "Episodic memories written to the store.",
		}),
		Consolidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "worm_consolidations_total",
			Help: "Completed memory consolidation passes.",
		}),
		TicksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "worm_ticks_processed_total",
			Help: "Behavior cycles executed across all worms.",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worm_ws_clients",
			Help: "Connected dashboard WebSocket clients.",
		}),
		WormFitness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worm_fitness",
			Help: "Current fitness per worm.",
		}, []string{"worm"}),
		WormEnergy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worm_energy",
			Help: "Current energy per worm.",
		}, []string{"worm"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worm_decisions_total",
			Help: "Behavior decisions by type.",
		}, []string{"behavior"}),
	}
}

// Handler serves the metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

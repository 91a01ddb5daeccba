// Package metrics exposes Prometheus metrics for the deploy worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deploy_worker"

// QueueStats is the read side of the task queue
type QueueStats interface {
	Size() int
	Active() int
}

// Metrics holds the worker collectors on their own registry
type Metrics struct {
	registry    *prometheus.Registry
	deployments *prometheus.CounterVec
	decisions   *prometheus.CounterVec
}

// New registers the worker collectors. Queue gauges are read from queue on every scrape.
func New(queue QueueStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Finished deployments by result",
		}, []string{"result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_decisions_total",
			Help:      "Image build decisions: build or skip",
		}, []string{"decision"}),
	}

	m.registry.MustRegister(
		m.deployments,
		m.decisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if queue != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Deployments waiting to start",
			}, func() float64 { return float64(queue.Size()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tasks",
				Help:      "Deployments currently running",
			}, func() float64 { return float64(queue.Active()) }),
		)
	}
	return m
}

// BuildDecision counts one build or skip decision
func (m *Metrics) BuildDecision(decision string) {
	m.decisions.WithLabelValues(decision).Inc()
}

// DeploymentFinished counts one finished deployment
func (m *Metrics) DeploymentFinished(result string) {
	m.deployments.WithLabelValues(result).Inc()
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

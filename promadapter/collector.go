// Package promadapter exports reactive system counters to Prometheus.
package promadapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/delaneyj/proxyparty/reactive"
)

// Config configures the Prometheus collector.
type Config struct {
	// Namespace is the metrics namespace (default: "proxyparty").
	Namespace string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Registry is where the counters are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Collector implements reactive.MetricsCollector with one CounterVec per
// reactive metric.
type Collector struct {
	counters map[string]*prometheus.CounterVec
}

var _ reactive.MetricsCollector = (*Collector)(nil)

// New registers the counters. Registering twice against the same registry
// panics, as with any promauto metric.
func New(opts ...Option) *Collector {
	config := Config{
		Namespace: "proxyparty",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	vec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Collector{
		counters: map[string]*prometheus.CounterVec{
			reactive.MetricTracks:     vec(reactive.MetricTracks, "Dependencies recorded, by operation", "op"),
			reactive.MetricTriggers:   vec(reactive.MetricTriggers, "Triggers on observed targets, by operation", "op"),
			reactive.MetricEffectRuns: vec(reactive.MetricEffectRuns, "Tracked effect runs, by effect kind", "kind"),
			reactive.MetricWarnings:   vec(reactive.MetricWarnings, "Dev mode misuse warnings"),
		},
	}
}

// IncrementCounter adds one to metric. Unknown metrics and mismatched
// labels are dropped.
func (c *Collector) IncrementCounter(metric string, labels map[string]string) {
	counter, ok := c.counters[metric]
	if !ok {
		return
	}
	m, err := counter.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return
	}
	m.Inc()
}

package reactive

// MetricsCollector receives operational counters from a ReactiveSystem.
// It is dependency free so any metrics backend can implement it.
type MetricsCollector interface {
	IncrementCounter(metric string, labels map[string]string)
}

// Counter names reported to a MetricsCollector.
const (
	MetricTracks     = "reactive_tracks_total"      // labels: op
	MetricTriggers   = "reactive_triggers_total"    // labels: op
	MetricEffectRuns = "reactive_effect_runs_total" // labels: kind (computed|plain)
	MetricWarnings   = "reactive_warnings_total"
)

func (rs *ReactiveSystem) count(metric string, labels map[string]string) {
	if rs.metrics == nil {
		return
	}
	rs.metrics.IncrementCounter(metric, labels)
}

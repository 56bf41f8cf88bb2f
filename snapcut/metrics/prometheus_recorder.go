package metrics

import (
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	actionDuration  *prom.HistogramVec
	actionResults   *prom.CounterVec
	reconcileTotal  *prom.CounterVec
	daemonDuration  *prom.HistogramVec
	daemonResponses *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them with reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		actionDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "snapcut",
			Name:      "action_duration_seconds",
			Help:      "Duration of snap command invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"action"}),
		actionResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "snapcut",
			Name:      "action_results_total",
			Help:      "Snap command invocations by result",
		}, []string{"action", "result"}),
		reconcileTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "snapcut",
			Name:      "reconcile_snaps_total",
			Help:      "Snaps processed by reconciliation batches by desired state and outcome",
		}, []string{"state", "outcome"}),
		daemonDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "snapcut",
			Name:      "snapd_request_duration_seconds",
			Help:      "Duration of snapd API requests",
			Buckets:   prom.DefBuckets,
		}, []string{"endpoint"}),
		daemonResponses: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "snapcut",
			Name:      "snapd_responses_total",
			Help:      "snapd API responses by status code",
		}, []string{"endpoint", "code"}),
	}
	reg.MustRegister(pr.actionDuration, pr.actionResults, pr.reconcileTotal, pr.daemonDuration, pr.daemonResponses)
	return pr
}

// Registry returns the registry the collectors live in.
func (pr *PrometheusRecorder) Registry() *prom.Registry {
	return pr.registry
}

func (pr *PrometheusRecorder) ObserveAction(action string, d time.Duration, success bool) {
	pr.actionDuration.WithLabelValues(action).Observe(d.Seconds())
	result := "success"
	if !success {
		result = "failed"
	}
	pr.actionResults.WithLabelValues(action, result).Inc()
}

func (pr *PrometheusRecorder) IncReconcile(state string, outcome Outcome) {
	pr.reconcileTotal.WithLabelValues(state, string(outcome)).Inc()
}

func (pr *PrometheusRecorder) ObserveDaemonRequest(endpoint string, d time.Duration, code int) {
	pr.daemonDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	pr.daemonResponses.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
}

// WriteTextfile writes every registered metric in the text exposition format,
// suitable for the node exporter's textfile collector.
func (pr *PrometheusRecorder) WriteTextfile(path string) error {
	return prom.WriteToTextfile(path, pr.registry)
}

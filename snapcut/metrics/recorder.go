package metrics

import "time"

// Outcome labels a reconciliation batch result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeInvalid Outcome = "invalid"
)

// Recorder receives observability hooks from the snapd client, snap records
// and the reconciler. Implementations may forward to Prometheus or anything
// else; NoopRecorder is the default.
type Recorder interface {
	// ObserveAction records one snap command (install, refresh, remove, get, ...).
	ObserveAction(action string, d time.Duration, success bool)
	// IncReconcile counts a processed snap within a batch.
	IncReconcile(state string, outcome Outcome)
	// ObserveDaemonRequest records one snapd API round trip. code is the HTTP
	// status, or 500 for connection failures.
	ObserveDaemonRequest(endpoint string, d time.Duration, code int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveAction(string, time.Duration, bool)        {}
func (NoopRecorder) IncReconcile(string, Outcome)                     {}
func (NoopRecorder) ObserveDaemonRequest(string, time.Duration, int) {}

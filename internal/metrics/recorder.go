// Package metrics records compilation metrics behind a small Recorder
// interface. NoopRecorder is the default; PrometheusRecorder backs the
// service's /metrics endpoint.
package metrics

import "time"

// Compilation modes.
const (
	ModeDocument = "document"
	ModeProject  = "project"
)

// OutcomeSuccess labels a compilation that produced an artifact. Failures are
// labeled with their failure kind.
const OutcomeSuccess = "success"

// Recorder defines observability hooks for the compilation pipeline.
type Recorder interface {
	ObserveCompileDuration(mode string, d time.Duration)
	IncCompileOutcome(mode, outcome string)
	ObservePasses(tool string, passes int)
	IncFallbackApplied(rule string)
	SetInFlight(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveCompileDuration(string, time.Duration) {}
func (NoopRecorder) IncCompileOutcome(string, string)             {}
func (NoopRecorder) ObservePasses(string, int)                    {}
func (NoopRecorder) IncFallbackApplied(string)                    {}
func (NoopRecorder) SetInFlight(int)                              {}

package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tex2pdf"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	compileDuration *prom.HistogramVec
	compileOutcome  *prom.CounterVec
	passes          *prom.HistogramVec
	fallbackApplied *prom.CounterVec
	inFlight        prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		compileDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Wall-clock duration of compilations, including workspace setup",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"mode"}),
		compileOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "compile_outcomes_total",
			Help:      "Compilations by mode and outcome",
		}, []string{"mode", "outcome"}),
		passes: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_passes",
			Help:      "Tool invocations per compilation",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"tool"}),
		fallbackApplied: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_applied_total",
			Help:      "Fallback definitions injected, by rule",
		}, []string{"rule"}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "compilations_in_flight",
			Help:      "Compilations currently holding a service slot",
		}),
	}
	reg.MustRegister(pr.compileDuration, pr.compileOutcome, pr.passes, pr.fallbackApplied, pr.inFlight)
	return pr
}

func (p *PrometheusRecorder) ObserveCompileDuration(mode string, d time.Duration) {
	if p == nil || p.compileDuration == nil {
		return
	}
	p.compileDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCompileOutcome(mode, outcome string) {
	if p == nil || p.compileOutcome == nil {
		return
	}
	p.compileOutcome.WithLabelValues(mode, outcome).Inc()
}

func (p *PrometheusRecorder) ObservePasses(tool string, passes int) {
	if p == nil || p.passes == nil {
		return
	}
	p.passes.WithLabelValues(tool).Observe(float64(passes))
}

func (p *PrometheusRecorder) IncFallbackApplied(rule string) {
	if p == nil || p.fallbackApplied == nil {
		return
	}
	p.fallbackApplied.WithLabelValues(rule).Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.Set(float64(n))
}

// HTTPHandler returns an http.Handler that serves the metrics gathered by reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveCompileDuration(ModeDocument, 1500*time.Millisecond)
	pr.IncCompileOutcome(ModeDocument, OutcomeSuccess)
	pr.IncCompileOutcome(ModeProject, "timeout")
	pr.IncCompileOutcome(ModeProject, "timeout")
	pr.ObservePasses("pdflatex", 3)
	pr.IncFallbackApplied("lemma")
	pr.SetInFlight(2)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 5)

	assert.InDelta(t, 2, testutil.ToFloat64(pr.compileOutcome.WithLabelValues(ModeProject, "timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pr.fallbackApplied.WithLabelValues("lemma")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(pr.inFlight), 0)
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveCompileDuration(ModeDocument, time.Second)
		pr.IncCompileOutcome(ModeDocument, OutcomeSuccess)
		pr.ObservePasses("latexmk", 1)
		pr.IncFallbackApplied(`\R`)
		pr.SetInFlight(1)
	})
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObserveCompileDuration(ModeProject, time.Second)
		r.IncCompileOutcome(ModeProject, OutcomeSuccess)
		r.ObservePasses("latexmk", 1)
		r.IncFallbackApplied("theorem")
		r.SetInFlight(0)
	})
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncCompileOutcome(ModeDocument, OutcomeSuccess)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tex2pdf_compile_outcomes_total")
}

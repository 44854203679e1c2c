package server

// Notes:
// - Serve is exercised with a real listener on 127.0.0.1:0; ListenAndServe's
//   bind failure is covered with an address that is already in use.
// - The JSON encode failure branch of writeJSON needs an unencodable value
//   and is covered directly.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/metrics"
	"github.com/alnah/go-tex2pdf/internal/report"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeCompiler struct {
	mu      sync.Mutex
	result  *tex2pdf.Result
	err     error
	block   chan struct{} // when set, compilations wait on it
	started chan struct{}
	docs    []tex2pdf.Document
	proj    []tex2pdf.Project
	tools   tex2pdf.ToolStatus
}

func (f *fakeCompiler) wait() {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeCompiler) CompileDocument(_ context.Context, doc tex2pdf.Document) (*tex2pdf.Result, error) {
	f.mu.Lock()
	f.docs = append(f.docs, doc)
	f.mu.Unlock()
	f.wait()
	return f.result, f.err
}

func (f *fakeCompiler) CompileProject(_ context.Context, p tex2pdf.Project) (*tex2pdf.Result, error) {
	f.mu.Lock()
	f.proj = append(f.proj, p)
	f.mu.Unlock()
	f.wait()
	return f.result, f.err
}

func (f *fakeCompiler) Tools(context.Context) tex2pdf.ToolStatus { return f.tools }

type fakeReports struct {
	got report.Input
	err error
}

func (f *fakeReports) Render(_ context.Context, in report.Input) ([]byte, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return []byte("<html>report " + in.Kind + "</html>"), nil
}

func okResult() *tex2pdf.Result {
	return &tex2pdf.Result{
		PDF:      []byte("%PDF-1.5 fake"),
		Log:      "Output written on main.pdf",
		Applied:  []string{"lemma", `\R`},
		Tool:     "latexmk",
		Passes:   1,
		Duration: 1500 * time.Millisecond,
	}
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// ---------------------------------------------------------------------------
// TestCompileDocument - Single document endpoint
// ---------------------------------------------------------------------------

func TestCompileDocument_JSON(t *testing.T) {
	t.Parallel()

	fc := &fakeCompiler{result: okResult()}
	s := New(fc, WithLimits(Limits{MaxTimeout: time.Minute}))
	s.newID = func() string { return "req-1" }

	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile", `{"source":"\\documentclass{article}","timeout":"2m"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "latexmk", rec.Header().Get("X-Tex2pdf-Tool"))
	assert.Equal(t, `lemma,\R`, rec.Header().Get("X-Tex2pdf-Applied"))

	var body compileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, []byte("%PDF-1.5 fake"), body.PDF)
	assert.Equal(t, int64(1500), body.DurationMS)
	assert.Equal(t, 1, body.Passes)

	require.Len(t, fc.docs, 1)
	assert.Equal(t, `\documentclass{article}`, fc.docs[0].Source)
	assert.Equal(t, time.Minute, fc.docs[0].Timeout, "timeout must be clamped to MaxTimeout")
}

func TestCompileDocument_PDFFormat(t *testing.T) {
	t.Parallel()

	s := New(&fakeCompiler{result: okResult()})
	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile?format=pdf", `{"source":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "13", rec.Header().Get("Content-Length"))
	assert.Equal(t, "%PDF-1.5 fake", rec.Body.String())
}

func TestCompileDocument_EmptyAppliedIsArray(t *testing.T) {
	t.Parallel()

	res := okResult()
	res.Applied = nil
	s := New(&fakeCompiler{result: res})
	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile", `{"source":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"applied":[]`)
}

func TestCompileDocument_RequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"malformed JSON", `{"source":`, http.StatusBadRequest, "invalid JSON body"},
		{"unknown field", `{"src":"x"}`, http.StatusBadRequest, "invalid JSON body"},
		{"bad timeout", `{"source":"x","timeout":"soon"}`, http.StatusBadRequest, "invalid timeout"},
		{"negative timeout", `{"source":"x","timeout":"-5s"}`, http.StatusBadRequest, "invalid timeout"},
		{"too large", `{"source":"` + strings.Repeat("a", 200) + `"}`, http.StatusRequestEntityTooLarge, "exceeds 64 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fc := &fakeCompiler{result: okResult()}
			s := New(fc, WithLimits(Limits{MaxBodyBytes: 64}))
			rec := do(t, s.Handler(), http.MethodPost, "/v1/compile", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, "invalid_input", body.Error.Kind)
			assert.Contains(t, body.Error.Message, tt.wantMsg)
			assert.Empty(t, fc.docs, "compiler must not run on bad requests")
		})
	}
}

// ---------------------------------------------------------------------------
// TestCompileErrors - Fault to status mapping
// ---------------------------------------------------------------------------

func TestCompileErrors_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"compile failed", &tex2pdf.CompileError{Kind: tex2pdf.KindCompileFailed, Log: "! Undefined", Errors: []tex2pdf.LogError{{Message: "Undefined"}}}, http.StatusUnprocessableEntity, "compile_failed"},
		{"timeout", &tex2pdf.CompileError{Kind: tex2pdf.KindTimeout}, http.StatusRequestTimeout, "timeout"},
		{"no files", &tex2pdf.CompileError{Kind: tex2pdf.KindNoFiles}, http.StatusBadRequest, "no_files"},
		{"main missing", &tex2pdf.CompileError{Kind: tex2pdf.KindMainFileNotFound}, http.StatusBadRequest, "main_file_not_found"},
		{"tooling missing", &tex2pdf.CompileError{Kind: tex2pdf.KindToolingMissing}, http.StatusInternalServerError, "tooling_missing"},
		{"canceled", &tex2pdf.CompileError{Kind: tex2pdf.KindCanceled, Message: "compilation canceled: context canceled"}, statusClientClosedRequest, "canceled"},
		{"unclassified", errors.New("open /srv/secret: permission denied"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := New(&fakeCompiler{err: tt.err})
			rec := do(t, s.Handler(), http.MethodPost, "/v1/compile", `{"source":"x"}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantKind, body.Error.Kind)
			assert.NotEmpty(t, body.RequestID)
			assert.NotContains(t, body.Error.Message, "/srv/secret", "host paths must not leak")
		})
	}
}

func TestCompileErrors_CarriesLog(t *testing.T) {
	t.Parallel()

	ce := &tex2pdf.CompileError{
		Kind:    tex2pdf.KindCompileFailed,
		Message: "Undefined control sequence",
		Log:     "! Undefined control sequence.",
		Errors:  []tex2pdf.LogError{{File: "main.tex", Line: 3, Message: "Undefined control sequence."}},
	}
	s := New(&fakeCompiler{err: ce})
	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile", `{"source":"x"}`)

	body := decodeError(t, rec)
	assert.Equal(t, "compilation failed: Undefined control sequence", body.Error.Message)
	assert.Equal(t, "! Undefined control sequence.", body.Error.Log)
	require.Len(t, body.Error.Errors, 1)
	assert.Equal(t, 3, body.Error.Errors[0].Line)
}

func TestCompileErrors_HTMLReport(t *testing.T) {
	t.Parallel()

	ce := &tex2pdf.CompileError{Kind: tex2pdf.KindCompileFailed}
	reports := &fakeReports{}
	s := New(&fakeCompiler{err: ce}, WithReports(reports))

	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile/project?format=html",
		`{"files":[{"path":"paper.tex","content":"\\begin{document}"}],"main_file":"paper.tex"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<html>report compile_failed</html>", rec.Body.String())
	assert.Equal(t, "paper.tex", reports.got.SourceName)
	assert.Equal(t, `\begin{document}`, reports.got.Source)
}

func TestCompileErrors_HTMLReportFallsBackToJSON(t *testing.T) {
	t.Parallel()

	ce := &tex2pdf.CompileError{Kind: tex2pdf.KindTimeout}
	s := New(&fakeCompiler{err: ce}, WithReports(&fakeReports{err: errors.New("broken")}))

	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile?format=html", `{"source":"x"}`)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "timeout", decodeError(t, rec).Error.Kind)
}

// ---------------------------------------------------------------------------
// TestCompileProject - Project endpoint
// ---------------------------------------------------------------------------

func TestCompileProject(t *testing.T) {
	t.Parallel()

	fc := &fakeCompiler{result: okResult()}
	s := New(fc)

	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile/project",
		`{"files":[{"path":"main.tex","content":"x"},{"path":"logo.png","content":"iVBO","binary":true}],"timeout":"30s"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fc.proj, 1)
	p := fc.proj[0]
	assert.Len(t, p.Files, 2)
	assert.True(t, p.Files[1].Binary)
	assert.Equal(t, tex2pdf.MainFileName, p.MainFile)
	assert.Equal(t, 30*time.Second, p.Timeout)
}

func TestCompileProject_DefaultMainFileForwarded(t *testing.T) {
	t.Parallel()

	fc := &fakeCompiler{err: &tex2pdf.CompileError{Kind: tex2pdf.KindCompileFailed}}
	reports := &fakeReports{}
	s := New(fc, WithReports(reports))

	rec := do(t, s.Handler(), http.MethodPost, "/v1/compile/project?format=html",
		`{"files":[{"path":"main.tex","content":"\\documentclass{article}"}]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Len(t, fc.proj, 1)
	assert.Equal(t, "main.tex", fc.proj[0].MainFile)
	assert.Equal(t, "main.tex", reports.got.SourceName, "report and compiler see the same main file")
}

func TestCompileErrors_CanceledNotLoggedAsError(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	fc := &fakeCompiler{err: &tex2pdf.CompileError{
		Kind:    tex2pdf.KindCanceled,
		Message: "compilation canceled: context canceled",
		Err:     context.Canceled,
	}}
	rec := do(t, New(fc, WithLogger(logger)).Handler(), http.MethodPost, "/v1/compile", `{"source":"x"}`)

	assert.Equal(t, statusClientClosedRequest, rec.Code)
	assert.Equal(t, "canceled", decodeError(t, rec).Error.Kind)
	assert.NotContains(t, logs.String(), `"level":"ERROR"`)
}

// ---------------------------------------------------------------------------
// TestConcurrency - Slot limits
// ---------------------------------------------------------------------------

func TestBusyReturns503(t *testing.T) {
	t.Parallel()

	fc := &fakeCompiler{
		result:  okResult(),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	s := New(fc, WithRecorder(rec), WithLimits(Limits{Workers: 1, QueueTimeout: 20 * time.Millisecond}))
	h := s.Handler()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- do(t, h, http.MethodPost, "/v1/compile", `{"source":"x"}`) }()
	<-fc.started

	busy := do(t, h, http.MethodPost, "/v1/compile", `{"source":"y"}`)
	assert.Equal(t, http.StatusServiceUnavailable, busy.Code)
	assert.Equal(t, "5", busy.Header().Get("Retry-After"))
	assert.Equal(t, kindBusy, decodeError(t, busy).Error.Kind)

	close(fc.block)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 0, s.slots.InUse())
}

// ---------------------------------------------------------------------------
// TestTools / TestHealth / TestMetrics
// ---------------------------------------------------------------------------

func TestTools(t *testing.T) {
	t.Parallel()

	fc := &fakeCompiler{tools: tex2pdf.ToolStatus{FullBuild: "latexmk", FullBuildPath: "/usr/bin/latexmk", Engine: "pdflatex"}}
	rec := do(t, New(fc).Handler(), http.MethodGet, "/v1/tools", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["available"])
	assert.Equal(t, "/usr/bin/latexmk", body["full_build_path"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := do(t, New(&fakeCompiler{}, WithLimits(Limits{Workers: 3})).Handler(), http.MethodGet, "/healthz?pretty=1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  \"status\": \"ok\"")
	assert.Contains(t, rec.Body.String(), `"workers": 3`)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.NewPrometheusRecorder(reg).SetInFlight(2)

	with := New(&fakeCompiler{}, WithMetricsHandler(metrics.HTTPHandler(reg))).Handler()
	rec := do(t, with, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tex2pdf_")

	without := New(&fakeCompiler{}).Handler()
	assert.Equal(t, http.StatusNotFound, do(t, without, http.MethodGet, "/metrics", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	rec := do(t, New(&fakeCompiler{}).Handler(), http.MethodGet, "/v1/compile", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ---------------------------------------------------------------------------
// TestMiddleware - Request IDs and panic recovery
// ---------------------------------------------------------------------------

func TestRequestID(t *testing.T) {
	t.Parallel()

	h := New(&fakeCompiler{}).Handler()

	kept := do(t, h, http.MethodGet, "/healthz", "", RequestIDHeader, "client-abc")
	assert.Equal(t, "client-abc", kept.Header().Get(RequestIDHeader))

	replaced := do(t, h, http.MethodGet, "/healthz", "", RequestIDHeader, "bad id\x01")
	id := replaced.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36, "generated IDs are UUIDs")

	tooLong := do(t, h, http.MethodGet, "/healthz", "", RequestIDHeader, strings.Repeat("a", maxRequestIDLength+1))
	assert.NotEqual(t, strings.Repeat("a", maxRequestIDLength+1), tooLong.Header().Get(RequestIDHeader))
}

type panicCompiler struct{ fakeCompiler }

func (p *panicCompiler) Tools(context.Context) tex2pdf.ToolStatus { panic("tools lookup exploded") }

func TestRecoverPanics(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	rec := do(t, New(&panicCompiler{}, WithLogger(logger)).Handler(), http.MethodGet, "/v1/tools", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decodeError(t, rec).Error.Kind)
	assert.Contains(t, logs.String(), "tools lookup exploded")
	assert.Contains(t, logs.String(), `"request_id"`)
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	t.Parallel()

	s := New(&fakeCompiler{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	err := s.writeJSON(rec, req, http.StatusOK, map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ---------------------------------------------------------------------------
// TestServe - Lifecycle
// ---------------------------------------------------------------------------

func TestServe_GracefulShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New(&fakeCompiler{}).Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", ln.Addr()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenAndServe_BindError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = New(&fakeCompiler{}).ListenAndServe(context.Background(), ln.Addr().String())
	assert.ErrorContains(t, err, "listening on")
}

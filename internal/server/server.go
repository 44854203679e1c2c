// Package server exposes the compiler over HTTP.
//
// Routes:
//
//	POST /v1/compile          single document, JSON in and out
//	POST /v1/compile/project  multi-file project, JSON in and out
//	GET  /v1/tools            toolchain probe
//	GET  /healthz             liveness
//	GET  /metrics             Prometheus metrics (when a handler is set)
//
// Compile routes accept ?format=pdf to receive the raw PDF on success and
// ?format=html to receive the HTML failure report on error.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/logfields"
	"github.com/alnah/go-tex2pdf/internal/metrics"
	"github.com/alnah/go-tex2pdf/internal/report"
)

// Defaults for Limits.
const (
	DefaultMaxBodyBytes = 32 << 20
	DefaultMaxTimeout   = 5 * time.Minute
	DefaultQueueTimeout = 10 * time.Second
	shutdownTimeout     = 30 * time.Second
)

// Compiler is the subset of *tex2pdf.Compiler the server needs.
type Compiler interface {
	CompileDocument(ctx context.Context, doc tex2pdf.Document) (*tex2pdf.Result, error)
	CompileProject(ctx context.Context, p tex2pdf.Project) (*tex2pdf.Result, error)
	Tools(ctx context.Context) tex2pdf.ToolStatus
}

// ReportRenderer renders HTML failure reports.
type ReportRenderer interface {
	Render(ctx context.Context, in report.Input) ([]byte, error)
}

// Limits bounds request handling. Zero values select defaults.
type Limits struct {
	MaxBodyBytes int64         // Request body cap
	MaxTimeout   time.Duration // Cap on per-request timeout overrides
	QueueTimeout time.Duration // Wait for a free compile slot before 503
	Workers      int           // Concurrent compilations (0 = auto)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder used for the in-flight gauge.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithReports enables ?format=html failure reports.
func WithReports(r ReportRenderer) Option {
	return func(s *Server) { s.reports = r }
}

// WithLimits sets request limits.
func WithLimits(l Limits) Option {
	return func(s *Server) { s.limits = l }
}

// Server handles compile requests with bounded concurrency.
type Server struct {
	compiler Compiler
	reports  ReportRenderer
	metrics  http.Handler
	recorder metrics.Recorder
	logger   *slog.Logger
	limits   Limits
	slots    *tex2pdf.Limiter
	newID    func() string
}

// New creates a Server around c.
func New(c Compiler, opts ...Option) *Server {
	s := &Server{
		compiler: c,
		recorder: metrics.NoopRecorder{},
		logger:   slog.New(slog.DiscardHandler),
		newID:    newRequestID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limits.MaxBodyBytes <= 0 {
		s.limits.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.limits.MaxTimeout <= 0 {
		s.limits.MaxTimeout = DefaultMaxTimeout
	}
	if s.limits.QueueTimeout <= 0 {
		s.limits.QueueTimeout = DefaultQueueTimeout
	}
	s.slots = tex2pdf.NewLimiter(tex2pdf.ResolveWorkers(s.limits.Workers))
	return s
}

// Handler returns the routed handler wrapped in logging and recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/compile", s.handleCompileDocument)
	mux.HandleFunc("POST /v1/compile/project", s.handleCompileProject)
	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return s.requestID(s.logRequests(s.recoverPanics(mux)))
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully, letting in-flight compilations finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()), slog.Int("workers", s.slots.Size()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe binds addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// acquire waits up to QueueTimeout for a compile slot.
func (s *Server) acquire(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.limits.QueueTimeout)
	defer cancel()
	if err := s.slots.Acquire(ctx); err != nil {
		return false
	}
	s.recorder.SetInFlight(s.slots.InUse())
	return true
}

func (s *Server) release() {
	s.slots.Release()
	s.recorder.SetInFlight(s.slots.InUse())
}

func (s *Server) log(ctx context.Context) *slog.Logger {
	if id := requestIDFrom(ctx); id != "" {
		return s.logger.With(logfields.RequestID(id))
	}
	return s.logger
}

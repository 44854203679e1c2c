package main

import (
	"context"
	"fmt"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alnah/go-tex2pdf/internal/config"
	"github.com/alnah/go-tex2pdf/internal/metrics"
	"github.com/alnah/go-tex2pdf/internal/server"
)

// runServe starts the HTTP compile service and blocks until interrupted.
func runServe(ctx context.Context, args []string, env *Environment) error {
	f := &serveFlags{}
	fs := buildServeFlagSet(f)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: serve takes no arguments, got %q", ErrUsage, fs.Args())
	}

	cfg, err := resolveConfig(&f.common, &f.tools, env)
	if err != nil {
		return hinted(err, &f.common, nil)
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.workers > 0 {
		cfg.Compile.Workers = f.workers
	}

	// The service always logs JSON for collectors.
	logCfg := cfg.Log
	logCfg.Format = "json"
	logger := newLogger(env.Stderr, logCfg, f.common.quiet)

	srv, compiler, err := buildServer(cfg, env, logger)
	if err != nil {
		return err
	}

	if tools := compiler.Tools(ctx); !tools.Available() {
		logger.Warn("no TeX toolchain found; compile requests will fail",
			slog.String("full_build", tools.FullBuild),
			slog.String("engine", tools.Engine),
		)
	}

	return hinted(srv.ListenAndServe(ctx, cfg.Server.Addr), &f.common, nil)
}

// buildServer wires the compiler, metrics registry and report renderer
// into a server.
func buildServer(cfg *config.Config, env *Environment, logger *slog.Logger) (*server.Server, Compiler, error) {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rec := metrics.NewPrometheusRecorder(reg)

	compiler := env.NewCompiler(compilerOptions(cfg, logger, rec)...)

	reports, err := newReportRenderer(cfg, "")
	if err != nil {
		return nil, nil, err
	}

	srv := server.New(compiler,
		server.WithLogger(logger),
		server.WithRecorder(rec),
		server.WithMetricsHandler(metrics.HTTPHandler(reg)),
		server.WithReports(reports),
		server.WithLimits(server.Limits{
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			MaxTimeout:   cfg.Server.MaxTimeoutDuration(),
			QueueTimeout: cfg.Server.QueueTimeoutDuration(),
			Workers:      cfg.Compile.Workers,
		}),
	)
	return srv, compiler, nil
}

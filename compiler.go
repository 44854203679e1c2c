package tex2pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/alnah/go-tex2pdf/internal/diagnostic"
	"github.com/alnah/go-tex2pdf/internal/fallback"
	"github.com/alnah/go-tex2pdf/internal/logfields"
	"github.com/alnah/go-tex2pdf/internal/metrics"
	"github.com/alnah/go-tex2pdf/internal/toolchain"
	"github.com/alnah/go-tex2pdf/internal/workspace"
)

// Compiler patches, materializes and compiles LaTeX sources.
// It holds no per-request state and is safe for concurrent use.
type Compiler struct {
	cfg          compilerConfig
	patcher      *fallback.Patcher // nil when fallback is disabled
	materializer *workspace.Materializer
	prober       *toolchain.Prober
	orchestrator *toolchain.Orchestrator
}

// NewCompiler creates a Compiler with default configuration.
// Use options to customize behavior (e.g., WithTimeout, WithEngine, WithLogger).
func NewCompiler(opts ...Option) *Compiler {
	cfg := compilerConfig{
		timeout:      DefaultTimeout,
		maxPasses:    DefaultMaxPasses,
		maxLogBytes:  DefaultMaxLogBytes,
		probeTimeout: toolchain.DefaultProbeTimeout,
		logger:       slog.New(slog.DiscardHandler),
		recorder:     metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Compiler{
		cfg:          cfg,
		materializer: &workspace.Materializer{BaseDir: cfg.workDir},
		prober:       &toolchain.Prober{LookPath: cfg.lookPath, Timeout: cfg.probeTimeout},
	}
	if !cfg.noFallback {
		c.patcher = fallback.NewPatcher(cfg.rules...)
	}
	c.orchestrator = &toolchain.Orchestrator{
		Prober:     c.prober,
		Runner:     cfg.runner,
		Tools:      cfg.tools,
		MaxPasses:  cfg.maxPasses,
		SupportDir: cfg.supportDir,
		Logger:     cfg.logger,
	}
	return c
}

// CompileDocument patches doc.Source, compiles it as MainFileName and
// returns the PDF. Failures are *CompileError values except filesystem and
// launch errors, which are returned as-is.
func (c *Compiler) CompileDocument(ctx context.Context, doc Document) (result *Result, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.ModeDocument, start, result, err) }()
	defer recoverInternal(&err)

	if strings.TrimSpace(doc.Source) == "" {
		return nil, &CompileError{Kind: KindInvalidInput, Message: "document source is empty"}
	}

	patch := c.Patch(ctx, doc.Source)
	plan, err := workspace.Prepare([]workspace.File{{Path: MainFileName, Content: patch.Source}}, MainFileName)
	if err != nil {
		return nil, validationError(err, MainFileName)
	}

	result, err = c.compile(ctx, metrics.ModeDocument, plan, doc.Timeout)
	if err != nil {
		return nil, err
	}
	result.PatchedSource = patch.Source
	result.Applied = patch.Applied
	result.Duration = time.Since(start)
	return result, nil
}

// CompileProject validates p before any I/O, patches every LaTeX file,
// writes the project into a fresh workspace and compiles p.MainFile from its
// own directory.
func (c *Compiler) CompileProject(ctx context.Context, p Project) (result *Result, err error) {
	start := time.Now()
	defer func() { c.observe(metrics.ModeProject, start, result, err) }()
	defer recoverInternal(&err)

	files := make([]workspace.File, len(p.Files))
	for i, f := range p.Files {
		files[i] = workspace.File(f)
	}
	plan, err := workspace.Prepare(files, p.MainFile)
	if err != nil {
		return nil, validationError(err, p.MainFile)
	}

	var applied []string
	if c.patcher != nil {
		plan.RewriteText(func(rel, content string) string {
			if !fallback.IsDocumentFile(rel) {
				return content
			}
			patch := c.patcher.Patch(ctx, content)
			for _, name := range patch.Applied {
				if !slices.Contains(applied, name) {
					applied = append(applied, name)
				}
			}
			return patch.Source
		})
	}

	result, err = c.compile(ctx, metrics.ModeProject, plan, p.Timeout)
	if err != nil {
		return nil, err
	}
	result.Applied = applied
	result.Duration = time.Since(start)
	return result, nil
}

// Patch runs the fallback patcher alone. With fallback disabled the source
// is returned unchanged.
func (c *Compiler) Patch(ctx context.Context, source string) PatchResult {
	if c.patcher == nil {
		return PatchResult{Source: source}
	}
	p := c.patcher.Patch(ctx, source)
	return PatchResult{Source: p.Source, Applied: p.Applied, Packages: p.Packages}
}

// Tools probes for the configured TeX tools.
func (c *Compiler) Tools(ctx context.Context) ToolStatus {
	tools := c.cfg.tools
	if tools.FullBuild == "" {
		tools.FullBuild = toolchain.DefaultFullBuild
	}
	if tools.Engine == "" {
		tools.Engine = toolchain.DefaultEngine
	}
	a := c.prober.Probe(ctx, tools)
	return ToolStatus{
		FullBuild:     tools.FullBuild,
		FullBuildPath: a.FullBuild,
		Engine:        tools.Engine,
		EnginePath:    a.SinglePass,
	}
}

// compile materializes plan, runs the toolchain and reads the artifact.
// The workspace is removed on every path, including panics.
func (c *Compiler) compile(ctx context.Context, mode string, plan *workspace.Plan, timeout time.Duration) (*Result, error) {
	logger := c.cfg.logger.With(logfields.Mode(mode))

	ws, err := c.materializer.Create(plan)
	if err != nil {
		return nil, fmt.Errorf("materializing workspace: %w", err)
	}
	defer c.cleanup(logger, ws)
	logger.Debug("workspace ready", logfields.Workspace(ws.Root), logfields.Files(plan.Len()), logfields.MainFile(plan.Main()))

	if timeout <= 0 {
		timeout = c.cfg.timeout
	}
	outcome, err := c.orchestrator.Run(ctx, toolchain.Job{
		Dir:      ws.MainDir(),
		MainFile: filepath.Base(ws.MainPath),
		Timeout:  timeout,
	})
	if err != nil {
		switch {
		case errors.Is(err, toolchain.ErrToolingMissing):
			return nil, &CompileError{Kind: KindToolingMissing, Message: err.Error(), Err: err}
		case errors.Is(err, toolchain.ErrCanceled):
			return nil, &CompileError{Kind: KindCanceled, Message: err.Error(), Err: err}
		}
		return nil, err
	}
	c.cfg.recorder.ObservePasses(outcome.Tool, outcome.Passes)

	if !outcome.Success {
		d := diagnostic.Extract(outcome.Output, outcome.LogPath, c.cfg.maxLogBytes)
		ce := &CompileError{
			Kind:    KindCompileFailed,
			Message: d.Summary(),
			Log:     d.Log,
			Errors:  d.Errors,
			Tool:    outcome.Tool,
			Passes:  outcome.Passes,
		}
		if outcome.TimedOut {
			ce.Kind = KindTimeout
			ce.Message = fmt.Sprintf("%s after %s", ErrTimeout, timeout)
		}
		return nil, ce
	}

	pdf, err := os.ReadFile(outcome.ArtifactPath) // #nosec G304 -- path inside our workspace
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	log, _ := diagnostic.Truncate(outcome.Output, c.cfg.maxLogBytes)

	return &Result{
		PDF:    pdf,
		Log:    log,
		Tool:   outcome.Tool,
		Passes: outcome.Passes,
	}, nil
}

// cleanup removes the workspace. Failures are logged, never returned, so
// they cannot mask the compilation result.
func (c *Compiler) cleanup(logger *slog.Logger, ws *workspace.Workspace) {
	if err := ws.Remove(); err != nil {
		logger.Warn("workspace cleanup failed", logfields.Workspace(ws.Root), logfields.Error(err))
	}
}

// observe records metrics and a summary log line for one compilation.
func (c *Compiler) observe(mode string, start time.Time, result *Result, err error) {
	elapsed := time.Since(start)
	c.cfg.recorder.ObserveCompileDuration(mode, elapsed)

	if err != nil {
		kind := KindOf(err)
		c.cfg.recorder.IncCompileOutcome(mode, string(kind))
		level := slog.LevelInfo
		if kind.Fault() == FaultServer {
			level = slog.LevelError
		}
		c.cfg.logger.Log(context.Background(), level, "compilation failed",
			logfields.Mode(mode), logfields.Kind(string(kind)), logfields.Duration(elapsed), logfields.Error(err))
		return
	}

	c.cfg.recorder.IncCompileOutcome(mode, metrics.OutcomeSuccess)
	for _, name := range result.Applied {
		c.cfg.recorder.IncFallbackApplied(name)
	}
	c.cfg.logger.Info("compilation succeeded",
		logfields.Mode(mode), logfields.Tool(result.Tool), logfields.Pass(result.Passes),
		logfields.Applied(result.Applied), logfields.Duration(elapsed))
}

// recoverInternal converts a panic into ErrInternal.
func recoverInternal(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrInternal, r)
	}
}

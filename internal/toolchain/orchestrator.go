package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-tex2pdf/internal/diagnostic"
	"github.com/alnah/go-tex2pdf/internal/logfields"
)

// DefaultMaxPasses bounds engine runs when only the single-pass tool is
// available. Enough for cross references and a table of contents.
const DefaultMaxPasses = 3

// Sentinel errors for orchestration.
var (
	ErrToolingMissing = errors.New("no TeX toolchain found")
	ErrToolLaunch     = errors.New("cannot launch tool")
	ErrCanceled       = errors.New("compilation canceled")
)

// engineFlags selects the latexmk output mode for an engine.
var engineFlags = map[string]string{
	"pdflatex": "-pdf",
	"xelatex":  "-pdfxe",
	"lualatex": "-pdflua",
}

// Job is one compilation request against a materialized workspace.
type Job struct {
	Dir      string        // Directory containing the main file
	MainFile string        // Main file name, relative to Dir
	Timeout  time.Duration // Wall-clock budget; <= 0 means none
}

// Outcome is the result of running the toolchain.
type Outcome struct {
	Success      bool
	Output       string // Combined output of every pass
	Tool         string // Base name of the tool that ran
	Passes       int
	TimedOut     bool
	ArtifactPath string
	LogPath      string
}

// Orchestrator picks a tool and runs it. Fields left zero use defaults.
type Orchestrator struct {
	Prober     *Prober
	Runner     Runner
	Tools      Tools
	MaxPasses  int
	SupportDir string // Prepended to TEXINPUTS when set
	Logger     *slog.Logger
}

// Run compiles job.MainFile. The full-build tool is preferred; the engine is
// used for up to MaxPasses passes otherwise. ErrToolingMissing is returned
// before the timeout starts when neither tool resolves. Exit statuses are
// never errors: success is decided by a non-empty artifact on disk, so any
// artifact or log already named after the main file is removed first.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Outcome, error) {
	tools := o.Tools.withDefaults()
	logger := o.logger()

	tool, path, fullBuild := o.selectTool(ctx, tools)
	if path == "" {
		return nil, fmt.Errorf("%w: neither %s nor %s is on PATH", ErrToolingMissing, tools.FullBuild, tools.Engine)
	}

	stem := strings.TrimSuffix(job.MainFile, filepath.Ext(job.MainFile))
	out := &Outcome{
		Tool:         tool,
		ArtifactPath: filepath.Join(job.Dir, stem+".pdf"),
		LogPath:      filepath.Join(job.Dir, stem+".log"),
	}
	for _, stale := range []string{out.ArtifactPath, out.LogPath} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale output: %w", err)
		}
	}

	cmd := Command{Name: path, Dir: job.Dir, Env: o.env()}
	passes := 1
	if fullBuild {
		cmd.Args = fullBuildArgs(tools.Engine, job.MainFile)
	} else {
		cmd.Args = singlePassArgs(job.MainFile)
		passes = o.maxPasses()
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if job.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	var output strings.Builder
	for pass := 1; pass <= passes; pass++ {
		logger.Debug("running tool", logfields.Tool(tool), logfields.Pass(pass))
		data, err := o.runner().Run(runCtx, cmd)
		output.Write(data)
		out.Passes = pass

		if runCtx.Err() != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
			}
			out.TimedOut = true
			if output.Len() > 0 && !strings.HasSuffix(output.String(), "\n") {
				output.WriteByte('\n')
			}
			output.WriteString(diagnostic.TimeoutNotice(job.Timeout))
			output.WriteByte('\n')
			break
		}
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return nil, fmt.Errorf("%w %s: %w", ErrToolLaunch, tool, err)
			}
			logger.Debug("tool failed", logfields.Tool(tool), logfields.Pass(pass), logfields.Error(err))
			break
		}
	}

	out.Output = output.String()
	out.Success = !out.TimedOut && artifactReady(out.ArtifactPath)
	return out, nil
}

// selectTool returns the tool to run. The engine is only probed when the
// full-build tool is absent.
func (o *Orchestrator) selectTool(ctx context.Context, tools Tools) (name, path string, fullBuild bool) {
	if p, ok := o.Prober.Find(ctx, tools.FullBuild); ok {
		return filepath.Base(tools.FullBuild), p, true
	}
	if p, ok := o.Prober.Find(ctx, tools.Engine); ok {
		return filepath.Base(tools.Engine), p, false
	}
	return "", "", false
}

func fullBuildArgs(engine, main string) []string {
	mode, ok := engineFlags[filepath.Base(engine)]
	if !ok {
		mode = "-pdf"
	}
	return []string{
		mode,
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-file-line-error",
		"-latexoption=-no-shell-escape",
		main,
	}
}

func singlePassArgs(main string) []string {
	return []string{
		"-interaction=nonstopmode",
		"-halt-on-error",
		"-file-line-error",
		"-no-shell-escape",
		main,
	}
}

// env restricts TeX output to the workspace and exposes SupportDir.
func (o *Orchestrator) env() []string {
	env := []string{"openout_any=p"}
	if o.SupportDir != "" {
		// Trailing separator keeps the default search path.
		env = append(env, "TEXINPUTS="+o.SupportDir+string(os.PathListSeparator)+os.Getenv("TEXINPUTS"))
	}
	return env
}

func (o *Orchestrator) maxPasses() int {
	if o.MaxPasses > 0 {
		return o.MaxPasses
	}
	return DefaultMaxPasses
}

func (o *Orchestrator) runner() Runner {
	if o.Runner != nil {
		return o.Runner
	}
	return ExecRunner{}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// artifactReady reports whether path is a non-empty regular file.
func artifactReady(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

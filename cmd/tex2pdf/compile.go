package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/config"
	"github.com/alnah/go-tex2pdf/internal/fileutil"
	"github.com/alnah/go-tex2pdf/internal/logfields"
	"github.com/alnah/go-tex2pdf/internal/report"
)

// stdioPath selects stdin for input or stdout for output.
const stdioPath = "-"

// compileJob is one resolved compile invocation, shared by compile,
// project and watch.
type compileJob struct {
	cfg      *config.Config
	flags    *compileFlags
	compiler Compiler
	logger   *slog.Logger
	env      *Environment
}

// runCompile compiles a single .tex file (or stdin) to PDF.
func runCompile(ctx context.Context, args []string, env *Environment) error {
	f := &compileFlags{}
	fs := buildCompileFlagSet("compile", f)
	input, err := parseSingleArg(fs, args)
	if err != nil {
		return err
	}

	job, err := newCompileJob(f, env)
	if err != nil {
		return hinted(err, &f.common, &f.out)
	}
	if err := job.compileFile(ctx, input); err != nil {
		return hinted(err, &f.common, &f.out)
	}
	return nil
}

// parseSingleArg parses fs and returns its one positional argument.
func parseSingleArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := parseFlags(fs, args); err != nil {
		return "", err
	}
	return singleArg(fs)
}

// parseFlags parses args, classifying failures as usage errors.
// flag.ErrHelp is returned unchanged.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// singleArg returns the only positional argument of a parsed FlagSet.
func singleArg(fs *flag.FlagSet) (string, error) {
	switch fs.NArg() {
	case 0:
		return "", ErrNoInput
	case 1:
		return fs.Arg(0), nil
	default:
		return "", fmt.Errorf("%w: expected one input, got %d", ErrUsage, fs.NArg())
	}
}

// newCompileJob resolves configuration and builds the compiler.
func newCompileJob(f *compileFlags, env *Environment) (*compileJob, error) {
	cfg, err := resolveConfig(&f.common, &f.tools, env)
	if err != nil {
		return nil, err
	}
	logger := newLogger(env.Stderr, cfg.Log, f.common.quiet)
	return &compileJob{
		cfg:      cfg,
		flags:    f,
		compiler: env.NewCompiler(compilerOptions(cfg, logger, nil)...),
		logger:   logger,
		env:      env,
	}, nil
}

// compileFile reads input, compiles it and writes the PDF and side outputs.
func (j *compileJob) compileFile(ctx context.Context, input string) error {
	source, err := readInput(input, j.env.Stdin)
	if err != nil {
		return err
	}

	output, err := j.outputPath(input)
	if err != nil {
		return err
	}

	j.logger.Debug("compiling", logfields.Path(input))
	result, err := j.compiler.CompileDocument(ctx, tex2pdf.Document{Source: string(source)})
	if err != nil {
		j.writeFailure(ctx, err, tex2pdf.MainFileName, string(source))
		return err
	}
	return j.writeSuccess(input, output, result)
}

// outputPath returns where the PDF goes: --output, stdout for stdin input,
// or the input path with a .pdf extension.
func (j *compileJob) outputPath(input string) (string, error) {
	out := j.flags.out.output
	switch {
	case out != "":
	case input == stdioPath:
		return stdioPath, nil
	default:
		var err error
		if out, err = fileutil.ReplaceExt(input, ".pdf"); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUsage, err)
		}
	}
	if out == stdioPath {
		return out, nil
	}
	if err := fileutil.CheckWritable(filepath.Dir(out)); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrWriteOutput, out, err)
	}
	return out, nil
}

// writeSuccess writes the PDF and the optional log.
func (j *compileJob) writeSuccess(input, output string, result *tex2pdf.Result) error {
	if err := j.writeLog(result.Log); err != nil {
		return err
	}
	if output == stdioPath {
		if _, err := j.env.Stdout.Write(result.PDF); err != nil {
			return fmt.Errorf("%w: stdout: %v", ErrWriteOutput, err)
		}
	} else if err := fileutil.WriteFileAtomic(output, result.PDF, filePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}

	j.logger.Info("compiled",
		logfields.Path(input),
		slog.String("output", output),
		logfields.Tool(result.Tool),
		slog.Int("passes", result.Passes),
		logfields.Applied(result.Applied),
		logfields.Duration(result.Duration),
	)
	return nil
}

// writeFailure writes the log and the HTML report requested for a failed
// compilation. Errors here are logged, never returned: the compile error
// is what the user needs to see.
func (j *compileJob) writeFailure(ctx context.Context, err error, sourceName, source string) {
	var ce *tex2pdf.CompileError
	if errors.As(err, &ce) {
		if werr := j.writeLog(ce.Log); werr != nil {
			j.logger.Warn("writing log", logfields.Error(werr))
		}
	}
	if j.flags.out.report == "" {
		return
	}

	// Log line numbers refer to the patched source that was compiled.
	patched := j.compiler.Patch(ctx, source).Source
	in := report.FromError(err, sourceName, patched)
	in.Generated = j.env.Now()
	if werr := writeReport(ctx, j.cfg, j.flags.out, in); werr != nil {
		j.logger.Warn("writing report", logfields.Error(werr))
		return
	}
	j.logger.Info("report written", logfields.Path(j.flags.out.report))
}

func (j *compileJob) writeLog(log string) error {
	if j.flags.out.log == "" {
		return nil
	}
	if err := fileutil.WriteFileAtomic(j.flags.out.log, []byte(log), filePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// writeReport renders in and writes it to out.report.
func writeReport(ctx context.Context, cfg *config.Config, out outputFlags, in report.Input) error {
	renderer, err := newReportRenderer(cfg, out.style)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	html, err := renderer.Render(ctx, in)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(out.report, html, filePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// readInput reads a file, or stdin for "-".
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == stdioPath {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("%w: stdin: %v", ErrReadInput, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided input file
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadInput, err)
	}
	return data, nil
}

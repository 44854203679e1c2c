package main

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/assets"
	"github.com/alnah/go-tex2pdf/internal/config"
	"github.com/alnah/go-tex2pdf/internal/fallback"
	"github.com/alnah/go-tex2pdf/internal/fileutil"
	"github.com/alnah/go-tex2pdf/internal/hints"
	"github.com/alnah/go-tex2pdf/internal/report"
)

// Sentinel errors for CLI operations.
var (
	ErrUsage       = errors.New("invalid usage")
	ErrNoInput     = errors.New("no input specified")
	ErrReadInput   = errors.New("failed to read input")
	ErrWriteOutput = errors.New("failed to write output")
)

// filePermissions applies to PDFs, logs and reports: rw-r--r--.
const filePermissions = 0o644

// resolveConfig builds the effective configuration for a command:
// defaults, then the config file, then TEX2PDF_* variables, then tool flags.
func resolveConfig(common *commonFlags, tools *toolFlags, env *Environment) (*config.Config, error) {
	warnUnknownEnvVars(env.Stderr)
	envCfg := loadEnvConfig()

	name := configName(common)

	cfg := config.DefaultConfig()
	if name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvConfig(envCfg, cfg)
	if tools != nil {
		applyToolFlags(tools, cfg)
	}
	if common.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyToolFlags copies explicitly set tool flags into cfg.
func applyToolFlags(f *toolFlags, cfg *config.Config) {
	if f.timeout != "" {
		cfg.Compile.Timeout = f.timeout
	}
	if f.engine != "" {
		cfg.Compile.Engine = f.engine
	}
	if f.supportDir != "" {
		cfg.Compile.SupportDir = f.supportDir
	}
	if f.noFallback {
		cfg.Fallback.Disable = true
	}
	if len(f.exclude) > 0 {
		cfg.Fallback.Exclude = append(cfg.Fallback.Exclude, f.exclude...)
	}
}

// newLogger creates the CLI logger. Quiet mode keeps only errors.
func newLogger(w io.Writer, cfg config.LogConfig, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// compilerOptions translates cfg into compiler options.
func compilerOptions(cfg *config.Config, logger *slog.Logger, rec tex2pdf.Recorder) []tex2pdf.Option {
	opts := []tex2pdf.Option{
		tex2pdf.WithEngine(cfg.Compile.Engine),
		tex2pdf.WithFullBuildTool(cfg.Compile.FullBuildTool),
		tex2pdf.WithWorkDir(cfg.Compile.WorkDir),
		tex2pdf.WithSupportDir(cfg.Compile.SupportDir),
		tex2pdf.WithLogger(logger),
		tex2pdf.WithRecorder(rec),
	}
	if d := cfg.Compile.TimeoutDuration(); d > 0 {
		opts = append(opts, tex2pdf.WithTimeout(d))
	}
	if cfg.Compile.MaxPasses > 0 {
		opts = append(opts, tex2pdf.WithMaxPasses(cfg.Compile.MaxPasses))
	}
	if cfg.Compile.MaxLogBytes > 0 {
		opts = append(opts, tex2pdf.WithMaxLogBytes(cfg.Compile.MaxLogBytes))
	}

	switch {
	case cfg.Fallback.Disable:
		opts = append(opts, tex2pdf.WithoutFallback())
	case len(cfg.Fallback.Exclude) > 0:
		opts = append(opts, tex2pdf.WithRules(fallback.Without(tex2pdf.DefaultRules(), cfg.Fallback.Exclude...)...))
	}
	return opts
}

// newReportRenderer loads report assets from cfg. A custom asset directory
// falls back to the embedded assets for anything it does not provide.
func newReportRenderer(cfg *config.Config, styleOverride string) (*report.Renderer, error) {
	resolver, err := assets.NewAssetResolver(cfg.Assets.BasePath)
	if err != nil {
		return nil, err
	}
	style := cfg.Report.Style
	if styleOverride != "" {
		style = styleOverride
	}
	return report.New(report.Options{Assets: resolver, Style: style})
}

// withHints appends actionable hints to an error message.
// out may be nil for commands without output flags.
func withHints(err error, common *commonFlags, out *outputFlags) string {
	msg := err.Error()
	switch {
	case errors.Is(err, tex2pdf.ErrToolingMissing):
		msg += hints.ForToolingMissing()
	case errors.Is(err, tex2pdf.ErrTimeout):
		msg += hints.ForTimeout()
	case errors.Is(err, tex2pdf.ErrCompileFailed):
		if out != nil {
			msg += hints.ForCompileFailed(out.log != "", out.report != "")
		}
	case errors.Is(err, tex2pdf.ErrMainFileNotFound):
		msg += hints.ForMainFile(nil)
	case errors.Is(err, tex2pdf.ErrUnsafePath):
		msg += hints.ForUnsafePath()
	case errors.Is(err, config.ErrConfigNotFound):
		var searched []string
		if name := configName(common); name != "" && !fileutil.IsFilePath(name) {
			searched = config.SearchPaths(name)
		}
		msg += hints.ForConfigNotFound(searched)
	case errors.Is(err, ErrWriteOutput):
		msg += hints.ForOutputDirectory()
	}
	return msg
}

// configName returns the config requested by flag or environment.
func configName(common *commonFlags) string {
	if common != nil && common.config != "" {
		return common.config
	}
	return loadEnvConfig().ConfigPath
}

// hintedError is an error whose message carries hints. Unwrap keeps exit
// code mapping intact.
type hintedError struct {
	err error
	msg string
}

func (e *hintedError) Error() string { return e.msg }
func (e *hintedError) Unwrap() error { return e.err }

// hinted wraps err with hints for the user.
func hinted(err error, common *commonFlags, out *outputFlags) error {
	if err == nil || isHinted(err) {
		return err
	}
	return &hintedError{err: err, msg: withHints(err, common, out)}
}

package tex2pdf

import (
	"log/slog"
	"time"

	"github.com/alnah/go-tex2pdf/internal/fallback"
	"github.com/alnah/go-tex2pdf/internal/metrics"
	"github.com/alnah/go-tex2pdf/internal/toolchain"
)

// MainFileName is the file name a single document is compiled as.
const MainFileName = "main.tex"

// Document is a single LaTeX source compiled as MainFileName.
type Document struct {
	Source  string
	Timeout time.Duration // Overrides the compiler timeout when > 0
}

// File is one project file. Binary content is standard base64.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Binary  bool   `json:"binary,omitempty"`
}

// Project is a set of files compiled from MainFile.
type Project struct {
	Files    []File
	MainFile string
	Timeout  time.Duration // Overrides the compiler timeout when > 0
}

// Result is a successful compilation.
type Result struct {
	PDF           []byte
	Log           string        // Bounded build output
	PatchedSource string        // Source actually compiled (single document only)
	Applied       []string      // Fallback rules injected
	Tool          string        // Tool that produced the PDF
	Passes        int           // Tool invocations
	Duration      time.Duration // Wall-clock time including workspace setup
}

// PatchResult is the outcome of running the fallback patcher alone.
type PatchResult struct {
	Source   string
	Applied  []string
	Packages []string
}

// ToolStatus reports which TeX tools the compiler can use.
type ToolStatus struct {
	FullBuild     string `json:"full_build"`
	FullBuildPath string `json:"full_build_path,omitempty"`
	Engine        string `json:"engine"`
	EnginePath    string `json:"engine_path,omitempty"`
}

// Available reports whether at least one tool can compile.
func (s ToolStatus) Available() bool {
	return s.FullBuildPath != "" || s.EnginePath != ""
}

// FallbackRule describes one construct the patcher can define.
type FallbackRule = fallback.Rule

// Recorder receives compilation metrics.
type Recorder = metrics.Recorder

// DefaultRules returns the built-in fallback rules.
func DefaultRules() []FallbackRule {
	return fallback.DefaultRules()
}

// Option configures a Compiler.
type Option func(*compilerConfig)

// compilerConfig holds internal configuration for Compiler.
type compilerConfig struct {
	timeout      time.Duration
	maxPasses    int
	maxLogBytes  int
	probeTimeout time.Duration
	tools        toolchain.Tools
	workDir      string
	supportDir   string
	rules        []FallbackRule
	noFallback   bool
	logger       *slog.Logger
	recorder     metrics.Recorder

	// Test seams.
	runner   toolchain.Runner
	lookPath func(string) (string, error)
}

// Defaults used when no option overrides them.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxPasses   = toolchain.DefaultMaxPasses
	DefaultMaxLogBytes = 64 * 1024
)

// WithTimeout sets the default compilation budget.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("tex2pdf: WithTimeout duration must be positive")
	}
	return func(c *compilerConfig) {
		c.timeout = d
	}
}

// WithMaxPasses bounds engine runs when latexmk is unavailable.
// Panics if n <= 0.
func WithMaxPasses(n int) Option {
	if n <= 0 {
		panic("tex2pdf: WithMaxPasses must be positive")
	}
	return func(c *compilerConfig) {
		c.maxPasses = n
	}
}

// WithMaxLogBytes bounds the log returned with results and errors.
// Panics if n <= 0.
func WithMaxLogBytes(n int) Option {
	if n <= 0 {
		panic("tex2pdf: WithMaxLogBytes must be positive")
	}
	return func(c *compilerConfig) {
		c.maxLogBytes = n
	}
}

// WithProbeTimeout bounds each tool lookup.
// Panics if d <= 0.
func WithProbeTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("tex2pdf: WithProbeTimeout duration must be positive")
	}
	return func(c *compilerConfig) {
		c.probeTimeout = d
	}
}

// WithEngine selects the TeX engine (pdflatex, xelatex, lualatex or a path).
func WithEngine(name string) Option {
	return func(c *compilerConfig) {
		c.tools.Engine = name
	}
}

// WithFullBuildTool selects the multi-pass driver (latexmk or a path).
func WithFullBuildTool(name string) Option {
	return func(c *compilerConfig) {
		c.tools.FullBuild = name
	}
}

// WithWorkDir sets the parent directory of workspaces (os.TempDir by default).
func WithWorkDir(dir string) Option {
	return func(c *compilerConfig) {
		c.workDir = dir
	}
}

// WithSupportDir adds dir to the TeX input search path of every compilation,
// for shared classes, styles and images.
func WithSupportDir(dir string) Option {
	return func(c *compilerConfig) {
		c.supportDir = dir
	}
}

// WithRules replaces the default fallback rules.
func WithRules(rules ...FallbackRule) Option {
	return func(c *compilerConfig) {
		c.rules = rules
	}
}

// WithoutFallback disables source patching.
func WithoutFallback() Option {
	return func(c *compilerConfig) {
		c.noFallback = true
	}
}

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *compilerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. Nil keeps the no-op recorder.
func WithRecorder(r Recorder) Option {
	return func(c *compilerConfig) {
		if r != nil {
			c.recorder = r
		}
	}
}

package main

import (
	"io"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// toolFlags holds toolchain overrides.
type toolFlags struct {
	timeout    string
	engine     string
	supportDir string
	noFallback bool
	exclude    []string
}

// outputFlags holds where compile results go.
type outputFlags struct {
	output string // PDF path (default: <input>.pdf)
	log    string // Build log path, written on success and failure
	report string // HTML failure report path
	style  string // Report style name or CSS path
}

// compileFlags holds all flags for the compile and watch commands.
type compileFlags struct {
	common commonFlags
	tools  toolFlags
	out    outputFlags
}

// projectFlags holds all flags for the project command.
type projectFlags struct {
	compileFlags
	main string
}

// patchFlags holds flags for the patch command.
type patchFlags struct {
	common  commonFlags
	output  string
	exclude []string
	list    bool
}

// serveFlags holds flags for the serve command.
type serveFlags struct {
	common  commonFlags
	tools   toolFlags
	addr    string
	workers int
}

func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only print errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
}

func addToolFlags(fs *flag.FlagSet, f *toolFlags) {
	fs.StringVarP(&f.timeout, "timeout", "t", "", "compilation budget, e.g. 90s or 2m")
	fs.StringVarP(&f.engine, "engine", "e", "", "TeX engine: pdflatex, xelatex, lualatex, or a path")
	fs.StringVar(&f.supportDir, "support-dir", "", "directory added to the TeX input path")
	fs.BoolVar(&f.noFallback, "no-fallback", false, "compile the source without fallback definitions")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "fallback rules to skip, e.g. lemma,R")
}

func addOutputFlags(fs *flag.FlagSet, f *outputFlags) {
	fs.StringVarP(&f.output, "output", "o", "", "output PDF path")
	fs.StringVar(&f.log, "log", "", "write the build log to this file")
	fs.StringVar(&f.report, "report", "", "write an HTML report to this file on failure")
	fs.StringVar(&f.style, "style", "", "report style name or CSS file path")
}

// newFlagSet returns a FlagSet that reports errors to the caller
// instead of printing them.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false
	return fs
}

func buildCompileFlagSet(name string, f *compileFlags) *flag.FlagSet {
	fs := newFlagSet(name)
	addOutputFlags(fs, &f.out)
	addToolFlags(fs, &f.tools)
	addCommonFlags(fs, &f.common)
	return fs
}

func buildProjectFlagSet(f *projectFlags) *flag.FlagSet {
	fs := buildCompileFlagSet("project", &f.compileFlags)
	fs.StringVarP(&f.main, "main", "m", "", "main .tex file, relative to the project directory")
	return fs
}

func buildPatchFlagSet(f *patchFlags) *flag.FlagSet {
	fs := newFlagSet("patch")
	fs.StringVarP(&f.output, "output", "o", "", "write the patched source here instead of stdout")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "fallback rules to skip, e.g. lemma,R")
	fs.BoolVar(&f.list, "list", false, "list fallback rules and exit")
	addCommonFlags(fs, &f.common)
	return fs
}

func buildServeFlagSet(f *serveFlags) *flag.FlagSet {
	fs := newFlagSet("serve")
	fs.StringVarP(&f.addr, "addr", "a", "", "listen address (default :8080)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "concurrent compilations (0 = auto)")
	addToolFlags(fs, &f.tools)
	addCommonFlags(fs, &f.common)
	return fs
}

func buildDoctorFlagSet(jsonOutput *bool, common *commonFlags) *flag.FlagSet {
	fs := newFlagSet("doctor")
	fs.BoolVar(jsonOutput, "json", false, "print the result as JSON")
	addCommonFlags(fs, common)
	return fs
}

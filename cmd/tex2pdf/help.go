package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  compile     Compile a .tex file to PDF")
	fmt.Fprintln(w, "  project     Compile a directory of LaTeX sources to PDF")
	fmt.Fprintln(w, "  patch       Print a source with fallback definitions injected")
	fmt.Fprintln(w, "  watch       Recompile a .tex file whenever it changes")
	fmt.Fprintln(w, "  serve       Run the HTTP compile service")
	fmt.Fprintln(w, "  doctor      Check the TeX toolchain and environment")
	fmt.Fprintln(w, "  completion  Generate shell completion script")
	fmt.Fprintln(w, "  version     Show version information")
	fmt.Fprintln(w, "  help        Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'tex2pdf help <command>' for details on a specific command.")
}

// printToolFlags prints flags shared by commands that compile.
func printToolFlags(w io.Writer) {
	fmt.Fprintln(w, "Toolchain:")
	fmt.Fprintln(w, "  -t, --timeout <d>         Compilation budget, e.g. 90s or 2m")
	fmt.Fprintln(w, "  -e, --engine <s>          pdflatex, xelatex, lualatex, or a path")
	fmt.Fprintln(w, "      --support-dir <dir>   Directory added to the TeX input path")
	fmt.Fprintln(w, "      --no-fallback         Compile without fallback definitions")
	fmt.Fprintln(w, "      --exclude <rules>     Fallback rules to skip, e.g. lemma,R")
	fmt.Fprintln(w)
}

// printCommonFlags prints flags every command accepts.
func printCommonFlags(w io.Writer) {
	fmt.Fprintln(w, "General:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only print errors")
	fmt.Fprintln(w, "  -v, --verbose             Debug logging")
	fmt.Fprintln(w, "  -h, --help                Show this help")
}

func printOutputFlags(w io.Writer) {
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output PDF path (\"-\" for stdout)")
	fmt.Fprintln(w, "      --log <path>          Write the build log to this file")
	fmt.Fprintln(w, "      --report <path>       Write an HTML report to this file on failure")
	fmt.Fprintln(w, "      --style <s>           Report style name or CSS file path")
	fmt.Fprintln(w)
}

// printCompileUsage prints usage for the compile command.
func printCompileUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf compile <file.tex> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Compile a single LaTeX document. Missing theorem environments and")
	fmt.Fprintln(w, "notation macros are defined before compiling. Use \"-\" to read stdin;")
	fmt.Fprintln(w, "the PDF then goes to stdout unless --output is set.")
	fmt.Fprintln(w)
	printOutputFlags(w)
	printToolFlags(w)
	printCommonFlags(w)
}

// printProjectUsage prints usage for the project command.
func printProjectUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf project <dir> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Compile a multi-file project. Hidden files and build artifacts are")
	fmt.Fprintln(w, "skipped. Without --main, main.tex or the only file with a")
	fmt.Fprintln(w, "\\documentclass is compiled.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Project:")
	fmt.Fprintln(w, "  -m, --main <path>         Main .tex file, relative to <dir>")
	fmt.Fprintln(w)
	printOutputFlags(w)
	printToolFlags(w)
	printCommonFlags(w)
}

// printPatchUsage prints usage for the patch command.
func printPatchUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf patch <file.tex> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the source with fallback definitions injected, without compiling.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Patch:")
	fmt.Fprintln(w, "  -o, --output <path>       Write the patched source here instead of stdout")
	fmt.Fprintln(w, "      --exclude <rules>     Fallback rules to skip, e.g. lemma,R")
	fmt.Fprintln(w, "      --list                List fallback rules and exit")
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// printWatchUsage prints usage for the watch command.
func printWatchUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf watch <file.tex> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Compile a document, then recompile it whenever a .tex, .bib, .sty or")
	fmt.Fprintln(w, ".cls file in its directory changes. Stop with Ctrl+C.")
	fmt.Fprintln(w)
	printOutputFlags(w)
	printToolFlags(w)
	printCommonFlags(w)
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run the HTTP compile service.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Routes:")
	fmt.Fprintln(w, "  POST /v1/compile          Compile {\"source\": \"...\"}")
	fmt.Fprintln(w, "  POST /v1/compile/project  Compile {\"files\": [...], \"main_file\": \"...\"}")
	fmt.Fprintln(w, "  GET  /v1/tools            Toolchain status")
	fmt.Fprintln(w, "  GET  /healthz             Liveness")
	fmt.Fprintln(w, "  GET  /metrics             Prometheus metrics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Service:")
	fmt.Fprintln(w, "  -a, --addr <addr>         Listen address (default :8080)")
	fmt.Fprintln(w, "  -w, --workers <n>         Concurrent compilations (0 = auto)")
	fmt.Fprintln(w)
	printToolFlags(w)
	printCommonFlags(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tex2pdf doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check that latexmk and the TeX engine are installed and that")
	fmt.Fprintln(w, "workspaces can be created.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Doctor:")
	fmt.Fprintln(w, "      --json                Print the result as JSON")
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// commandUsage maps command names to their usage printers.
var commandUsage = map[string]func(io.Writer){
	"compile":    printCompileUsage,
	"project":    printProjectUsage,
	"patch":      printPatchUsage,
	"watch":      printWatchUsage,
	"serve":      printServeUsage,
	"doctor":     printDoctorUsage,
	"completion": printCompletionUsage,
}

// runHelp prints help for the given command, or general usage.
func runHelp(args []string, env *Environment) error {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return nil
	}
	switch args[0] {
	case "version", "help":
		printUsage(env.Stdout)
		return nil
	}
	usage, ok := commandUsage[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command: %s", ErrUsage, args[0])
	}
	usage(env.Stdout)
	return nil
}

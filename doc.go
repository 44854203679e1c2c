// Package tex2pdf compiles LaTeX documents and multi-file projects to PDF in
// isolated, short-lived workspaces.
//
// # Quick Start
//
// Create a compiler and compile a document:
//
//	c := tex2pdf.NewCompiler()
//
//	result, err := c.CompileDocument(ctx, tex2pdf.Document{
//	    Source: `\documentclass{article}\begin{document}Hello\end{document}`,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("hello.pdf", result.PDF, 0644)
//
// # Compilation Pipeline
//
// Each request goes through these stages:
//
//  1. Fallback patching: theorem-like environments and notation macros that
//     are used but never defined get guarded definitions, spliced in just
//     before \begin{document}
//  2. Workspace materialization: files are validated (no absolute paths, no
//     ".." segments), binary files are base64 decoded, and everything is
//     written into a fresh tex2pdf-* temporary directory
//  3. Tool probing: latexmk is preferred; pdflatex (or the configured
//     engine) is run up to DefaultMaxPasses times when latexmk is missing
//  4. Diagnostics: on failure, the TeX log is appended to the console output,
//     errors are parsed, and the result is truncated to its tail
//
// The workspace is removed on every exit path.
//
// # Errors
//
// Classified failures are returned as *CompileError. Use errors.Is with the
// sentinels, or Kind.Fault to map a failure to a status class:
//
//	var ce *tex2pdf.CompileError
//	if errors.As(err, &ce) && ce.Kind == tex2pdf.KindCompileFailed {
//	    fmt.Println(ce.Log)
//	}
//
// Filesystem and process launch errors are returned unclassified.
//
// # Concurrency
//
// A Compiler is safe for concurrent use. Bound the number of simultaneous
// TeX processes with a Limiter sized by ResolveWorkers:
//
//	lim := tex2pdf.NewLimiter(tex2pdf.ResolveWorkers(0))
//	if err := lim.Acquire(ctx); err != nil {
//	    return err
//	}
//	defer lim.Release()
//
// # Requirements
//
// A TeX distribution providing latexmk or pdflatex (TeX Live, MiKTeX) must be
// on PATH. Shell escape is always disabled.
package tex2pdf

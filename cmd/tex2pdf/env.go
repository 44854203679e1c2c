package main

import (
	"context"
	"io"
	"os"
	"time"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/toolchain"
)

// Compiler is the part of *tex2pdf.Compiler the commands use.
type Compiler interface {
	CompileDocument(ctx context.Context, doc tex2pdf.Document) (*tex2pdf.Result, error)
	CompileProject(ctx context.Context, p tex2pdf.Project) (*tex2pdf.Result, error)
	Patch(ctx context.Context, source string) tex2pdf.PatchResult
	Tools(ctx context.Context) tex2pdf.ToolStatus
}

// Environment holds injectable dependencies for testability.
// Includes I/O, time, the compiler constructor and the tool version probe.
type Environment struct {
	Now         func() time.Time
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	NewCompiler func(opts ...tex2pdf.Option) Compiler
	ToolVersion func(ctx context.Context, path string) string
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		NewCompiler: func(opts ...tex2pdf.Option) Compiler {
			return tex2pdf.NewCompiler(opts...)
		},
		ToolVersion: (&toolchain.Prober{}).Version,
	}
}

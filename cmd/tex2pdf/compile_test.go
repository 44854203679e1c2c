package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tex2pdf "github.com/alnah/go-tex2pdf"
)

// ---------------------------------------------------------------------------
// TestCompile - Success paths
// ---------------------------------------------------------------------------

func TestCompile_WritesPDFNextToInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "paper.tex")
	writeFile(t, input, testSource)
	logPath := filepath.Join(dir, "build.log")

	fc := okCompiler()
	env, _, stderr := testEnv(fc)
	code := runMain([]string{"tex2pdf", "compile", input, "--log", logPath, "-q"}, env)
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "paper.pdf"))
	if err != nil {
		t.Fatalf("reading pdf: %v", err)
	}
	if !strings.HasPrefix(string(pdf), "%PDF") {
		t.Errorf("pdf = %q", pdf)
	}
	log, err := os.ReadFile(logPath)
	if err != nil || !strings.Contains(string(log), "Output written") {
		t.Errorf("log = %q, %v", log, err)
	}

	docs := fc.documents()
	if len(docs) != 1 || docs[0].Source != testSource {
		t.Errorf("compiler got %+v", docs)
	}
	if stderr.Len() != 0 {
		t.Errorf("quiet mode printed: %q", stderr.String())
	}
}

func TestCompile_StdinToStdout(t *testing.T) {
	t.Parallel()

	env, stdout, stderr := testEnv(okCompiler())
	env.Stdin = strings.NewReader(testSource)

	code := runMain([]string{"tex2pdf", "compile", "-", "-q"}, env)
	if code != ExitSuccess {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if stdout.String() != "%PDF-1.5 test" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestCompile_ExplicitOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "in.tex")
	writeFile(t, input, testSource)
	out := filepath.Join(dir, "out", "result.pdf")
	if err := os.Mkdir(filepath.Dir(out), 0o750); err != nil {
		t.Fatal(err)
	}

	env, _, stderr := testEnv(okCompiler())
	if code := runMain([]string{"tex2pdf", "compile", input, "-o", out}, env); code != ExitSuccess {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
	if !strings.Contains(stderr.String(), "compiled") {
		t.Errorf("expected info log, got %q", stderr.String())
	}
}

func TestCompile_OutputDirectoryMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "in.tex")
	writeFile(t, input, testSource)

	fc := okCompiler()
	env, _, stderr := testEnv(fc)
	code := runMain([]string{"tex2pdf", "compile", input, "-o", filepath.Join(dir, "missing", "x.pdf")}, env)
	if code != ExitIO {
		t.Fatalf("exit = %d, want %d", code, ExitIO)
	}
	if !strings.Contains(stderr.String(), "hint:") {
		t.Errorf("expected output directory hint, got %q", stderr.String())
	}
	if len(fc.documents()) != 0 {
		t.Error("compiler must not run when the output cannot be written")
	}
}

// ---------------------------------------------------------------------------
// TestCompile - Failure paths
// ---------------------------------------------------------------------------

func TestCompile_FailureWritesLogAndReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "main.tex")
	writeFile(t, input, "\\documentclass{article}\n\\begin{document}\n\\foo\n\\end{document}\n")
	logPath := filepath.Join(dir, "main.log")
	reportPath := filepath.Join(dir, "report.html")

	fc := &fakeCompiler{err: &tex2pdf.CompileError{
		Kind:    tex2pdf.KindCompileFailed,
		Message: "main.tex:3: Undefined control sequence.",
		Log:     "! Undefined control sequence.\nl.3 \\foo",
		Errors:  []tex2pdf.LogError{{File: "main.tex", Line: 3, Message: "Undefined control sequence."}},
		Tool:    "latexmk",
		Passes:  1,
	}}
	env, _, stderr := testEnv(fc)

	code := runMain([]string{"tex2pdf", "compile", input, "--log", logPath, "--report", reportPath}, env)
	if code != ExitCompile {
		t.Fatalf("exit = %d, want %d", code, ExitCompile)
	}
	if !strings.Contains(stderr.String(), "compilation failed") {
		t.Errorf("stderr = %q", stderr.String())
	}

	log, err := os.ReadFile(logPath)
	if err != nil || !strings.Contains(string(log), "Undefined control sequence") {
		t.Errorf("log = %q, %v", log, err)
	}
	html, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	for _, want := range []string{"<!DOCTYPE html>", "compile_failed", "Undefined control sequence", "latexmk"} {
		if !strings.Contains(string(html), want) {
			t.Errorf("report should contain %q", want)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "main.pdf")); !os.IsNotExist(err) {
		t.Errorf("no PDF expected on failure, stat err = %v", err)
	}
}

func TestCompile_FailureHints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		args     []string
		wantCode int
		want     string
	}{
		{
			name:     "tooling missing",
			err:      &tex2pdf.CompileError{Kind: tex2pdf.KindToolingMissing},
			wantCode: ExitToolchain,
			want:     "install",
		},
		{
			name:     "timeout",
			err:      &tex2pdf.CompileError{Kind: tex2pdf.KindTimeout, Log: "partial"},
			wantCode: ExitTimeout,
			want:     "--timeout",
		},
		{
			name:     "compile failed suggests log",
			err:      &tex2pdf.CompileError{Kind: tex2pdf.KindCompileFailed},
			wantCode: ExitCompile,
			want:     "--log",
		},
		{
			name:     "invalid input",
			err:      &tex2pdf.CompileError{Kind: tex2pdf.KindInvalidInput, Message: "document source is empty"},
			wantCode: ExitUsage,
			want:     "document source is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			input := filepath.Join(t.TempDir(), "doc.tex")
			writeFile(t, input, testSource)
			env, _, stderr := testEnv(&fakeCompiler{err: tt.err})

			code := runMain([]string{"tex2pdf", "compile", input}, env)
			if code != tt.wantCode {
				t.Errorf("exit = %d, want %d", code, tt.wantCode)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr should contain %q, got %q", tt.want, stderr.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestOutputPath - Default PDF location
// ---------------------------------------------------------------------------

func TestOutputPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name   string
		input  string
		output string
		want   string
	}{
		{"replaces extension", filepath.Join(dir, "a.tex"), "", filepath.Join(dir, "a.pdf")},
		{"stdin goes to stdout", stdioPath, "", stdioPath},
		{"explicit stdout", filepath.Join(dir, "a.tex"), stdioPath, stdioPath},
		{"explicit path", filepath.Join(dir, "a.tex"), filepath.Join(dir, "b.pdf"), filepath.Join(dir, "b.pdf")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			j := &compileJob{flags: &compileFlags{out: outputFlags{output: tt.output}}}
			got, err := j.outputPath(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("outputPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

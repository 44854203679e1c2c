package report

// Notes:
// - The goldmark conversion error branch is unreachable: goldmark only fails
//   on writer errors and the renderer writes into a bytes.Buffer.
// - Exact chroma markup is not asserted, only that highlighting ran.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/assets"
)

const source = `\documentclass{article}
\begin{document}
Line three.
Line four.
\undefinedmacro
Line six.
\end{document}`

func failure() Input {
	return Input{
		Kind:    string(tex2pdf.KindCompileFailed),
		Message: `compilation failed: Undefined control sequence \undefinedmacro`,
		Tool:    "latexmk",
		Passes:  1,
		Errors: []tex2pdf.LogError{
			{File: "main.tex", Line: 5, Message: "Undefined control sequence."},
			{Message: "Emergency stop | fatal"},
		},
		Log:        "This is pdfTeX\n! Undefined control sequence.\nl.5 \\undefinedmacro\n",
		SourceName: "main.tex",
		Source:     source,
		Generated:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// ---------------------------------------------------------------------------
// TestMarkdown - Report structure
// ---------------------------------------------------------------------------

func TestMarkdown(t *testing.T) {
	t.Parallel()

	r, err := New(Options{ContextLines: 2})
	require.NoError(t, err)

	md := r.Markdown(failure())

	assert.Contains(t, md, "# LaTeX compilation failed")
	assert.Contains(t, md, "| Kind | `compile_failed` |")
	assert.Contains(t, md, "| Tool | `latexmk` |")
	assert.Contains(t, md, "| Passes | 1 |")
	assert.Contains(t, md, "| Errors | 2 |")
	assert.Contains(t, md, "| `main.tex` | 5 | `Undefined control sequence.` |")
	assert.Contains(t, md, "|  |  | `Emergency stop \\| fatal` |", "pipes in cells must be escaped")
	assert.Contains(t, md, `> compilation failed\: Undefined control sequence \\undefinedmacro`)
	assert.Contains(t, md, "## main\\.tex, lines 3 to 7")
	assert.Contains(t, md, "```latex {hl_lines=[3]}\nLine three.\nLine four.\n\\undefinedmacro\nLine six.\n\\end{document}\n```")
	assert.Contains(t, md, "## Log\n\n```text\n")
}

func TestMarkdown_OptionalSections(t *testing.T) {
	t.Parallel()

	r, err := New(Options{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(in *Input)
		absent  []string
		present []string
	}{
		{
			name:   "no source",
			mutate: func(in *Input) { in.Source = "" },
			absent: []string{"```latex"},
		},
		{
			name:   "error in another file",
			mutate: func(in *Input) { in.Errors[0].File = "chapter.tex" },
			absent: []string{"```latex"},
		},
		{
			name:   "line past end of source",
			mutate: func(in *Input) { in.Errors[0].Line = 99 },
			absent: []string{"```latex"},
		},
		{
			name:    "no errors",
			mutate:  func(in *Input) { in.Errors = nil },
			absent:  []string{"## Errors", "```latex"},
			present: []string{"| Errors | 0 |"},
		},
		{
			name:   "no log and no tool",
			mutate: func(in *Input) { in.Log = ""; in.Tool = ""; in.Passes = 0 },
			absent: []string{"## Log", "| Tool |", "| Passes |"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := failure()
			in.Errors = append([]tex2pdf.LogError(nil), in.Errors...)
			tt.mutate(&in)
			md := r.Markdown(in)
			for _, s := range tt.absent {
				assert.NotContains(t, md, s)
			}
			for _, s := range tt.present {
				assert.Contains(t, md, s)
			}
		})
	}
}

func TestMarkdown_LogTail(t *testing.T) {
	t.Parallel()

	r, err := New(Options{LogTailLines: 3})
	require.NoError(t, err)

	var log strings.Builder
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&log, "line %d\n", i)
	}
	in := failure()
	in.Log = log.String() + "```\n"

	md := r.Markdown(in)
	assert.Contains(t, md, "````text\nline 9\nline 10\n```\n````")
	assert.NotContains(t, md, "line 8\n")
}

// ---------------------------------------------------------------------------
// TestRender - HTML output
// ---------------------------------------------------------------------------

func TestRender(t *testing.T) {
	t.Parallel()

	r, err := New(Options{Style: "print"})
	require.NoError(t, err)

	out, err := r.Render(context.Background(), failure())
	require.NoError(t, err)

	html := string(out)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<title>LaTeX compilation failed</title>")
	assert.Contains(t, html, "@page", "print style should be inlined")
	assert.Contains(t, html, ".chroma", "highlight stylesheet should be inlined")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, `class="chroma"`)
	assert.Contains(t, html, "2026-01-02T03:04:05Z")
	assert.NotContains(t, html, "<script")
}

func TestRender_EscapesHTMLInLog(t *testing.T) {
	t.Parallel()

	r, err := New(Options{})
	require.NoError(t, err)

	in := failure()
	in.Log = "<script>alert(1)</script>"
	in.Message = "<b>bold</b>"
	out, err := r.Render(context.Background(), in)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "<script>alert(1)</script>")
	assert.NotContains(t, string(out), "<b>bold</b>")
}

func TestRender_CancelledContext(t *testing.T) {
	t.Parallel()

	r, err := New(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Render(ctx, failure())
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// TestNew - Asset loading
// ---------------------------------------------------------------------------

type fakeAssets struct {
	style, tmpl string
	styleErr    error
}

func (f fakeAssets) ResolveStyle(string) (string, error) { return f.style, f.styleErr }
func (f fakeAssets) LoadTemplate(string) (string, error) { return f.tmpl, nil }

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Style: "missing"})
	assert.ErrorIs(t, err, assets.ErrStyleNotFound)

	_, err = New(Options{Assets: fakeAssets{styleErr: errors.New("boom")}})
	assert.ErrorContains(t, err, "boom")

	_, err = New(Options{Assets: fakeAssets{tmpl: "{{.Broken"}})
	assert.ErrorIs(t, err, ErrRender)
}

func TestNew_CustomAssets(t *testing.T) {
	t.Parallel()

	r, err := New(Options{Assets: fakeAssets{style: "x{}", tmpl: "<p>{{.Body}}</p>"}})
	require.NoError(t, err)

	out, err := r.Render(context.Background(), Input{Kind: "timeout"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "<p><h1>"))
}

// ---------------------------------------------------------------------------
// TestFromError - CompileError mapping
// ---------------------------------------------------------------------------

func TestFromError(t *testing.T) {
	t.Parallel()

	ce := &tex2pdf.CompileError{
		Kind:    tex2pdf.KindTimeout,
		Message: "compilation timed out after 1s",
		Log:     "log",
		Tool:    "pdflatex",
		Passes:  2,
		Errors:  []tex2pdf.LogError{{Message: "x"}},
	}
	in := FromError(fmt.Errorf("wrapped: %w", ce), "main.tex", "src")

	assert.Equal(t, "timeout", in.Kind)
	assert.Equal(t, "wrapped: compilation timed out after 1s", in.Message)
	assert.Equal(t, "pdflatex", in.Tool)
	assert.Equal(t, 2, in.Passes)
	assert.Equal(t, "log", in.Log)
	assert.Len(t, in.Errors, 1)
	assert.Equal(t, "main.tex", in.SourceName)

	plain := FromError(errors.New("disk full"), "", "")
	assert.Equal(t, "internal", plain.Kind)
	assert.Equal(t, "disk full", plain.Message)
	assert.Empty(t, plain.Log)
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", code(""))
	assert.Equal(t, "`a\\|b`", code("a|b"))
	assert.Equal(t, "``a`b``", code("a`b"))
	assert.Equal(t, "`` `x ``", code("`x"))
	assert.Equal(t, `\\section\{x\}`, escape(`\section{x}`))
	assert.Equal(t, 3, longestRun("a```b``", '`'))
	assert.Equal(t, "b\nc", lastLines("a\nb\nc\n", 2))
	assert.Equal(t, "", lastLines("\n\n", 2))
	assert.Equal(t, "first", firstLine("first\nsecond"))
}

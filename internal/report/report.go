// Package report renders a compilation failure as a standalone HTML page.
//
// The failure is first written as Markdown (summary table, parsed errors,
// a highlighted excerpt of the source around the first error, and the tail
// of the build log), then converted with goldmark and wrapped in the report
// template from internal/assets.
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/assets"
)

// ErrRender indicates the report could not be produced.
var ErrRender = errors.New("report rendering failed")

// Defaults for excerpt and log sizes.
const (
	DefaultContextLines = 5
	DefaultLogTailLines = 60
	DefaultCodeStyle    = "github"
)

// Input is the failure to report.
type Input struct {
	Kind       string
	Message    string
	Tool       string
	Passes     int
	Errors     []tex2pdf.LogError
	Log        string
	SourceName string // Name of Source as it appears in log errors
	Source     string // Main file content, for the excerpt
	Generated  time.Time
}

// FromError builds an Input from a compilation error. sourceName and source
// are optional and enable the excerpt section.
func FromError(err error, sourceName, source string) Input {
	in := Input{
		Kind:       string(tex2pdf.KindOf(err)),
		SourceName: sourceName,
		Source:     source,
	}
	if err != nil {
		in.Message = err.Error()
	}
	var ce *tex2pdf.CompileError
	if errors.As(err, &ce) {
		in.Tool = ce.Tool
		in.Passes = ce.Passes
		in.Errors = ce.Errors
		in.Log = ce.Log
	}
	return in
}

// Assets supplies the report template and stylesheet.
type Assets interface {
	ResolveStyle(nameOrPath string) (string, error)
	LoadTemplate(name string) (string, error)
}

// Options configures a Renderer. Zero values select defaults.
type Options struct {
	Assets       Assets // Embedded assets when nil
	Style        string // Style name or CSS path
	CodeStyle    string // Chroma style for the excerpt
	ContextLines int
	LogTailLines int
}

// Renderer turns failures into HTML reports. Safe for concurrent use.
type Renderer struct {
	md             goldmark.Markdown
	page           *template.Template
	style          string
	highlightStyle string
	contextLines   int
	logTailLines   int
}

// New creates a Renderer, loading the template and stylesheet once.
func New(opts Options) (*Renderer, error) {
	if opts.Assets == nil {
		resolver, err := assets.NewAssetResolver("")
		if err != nil {
			return nil, err
		}
		opts.Assets = resolver
	}
	if opts.CodeStyle == "" {
		opts.CodeStyle = DefaultCodeStyle
	}
	if opts.ContextLines <= 0 {
		opts.ContextLines = DefaultContextLines
	}
	if opts.LogTailLines <= 0 {
		opts.LogTailLines = DefaultLogTailLines
	}

	css, err := opts.Assets.ResolveStyle(opts.Style)
	if err != nil {
		return nil, fmt.Errorf("loading report style: %w", err)
	}
	raw, err := opts.Assets.LoadTemplate(assets.ReportTemplateName)
	if err != nil {
		return nil, fmt.Errorf("loading report template: %w", err)
	}
	page, err := template.New(assets.ReportTemplateName).Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing template: %v", ErrRender, err)
	}

	var hl bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&hl, styles.Get(opts.CodeStyle)); err != nil {
		return nil, fmt.Errorf("%w: highlight stylesheet: %v", ErrRender, err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			highlighting.NewHighlighting(
				highlighting.WithStyle(opts.CodeStyle),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	return &Renderer{
		md:             md,
		page:           page,
		style:          css,
		highlightStyle: hl.String(),
		contextLines:   opts.ContextLines,
		logTailLines:   opts.LogTailLines,
	}, nil
}

// pageData is the data passed to the report template.
type pageData struct {
	Title          string
	Style          template.CSS
	HighlightStyle template.CSS
	Body           template.HTML
	Generated      string
}

// Render produces the HTML report. Goldmark has no context support, so the
// conversion runs in a goroutine and ctx only bounds the wait.
func (r *Renderer) Render(ctx context.Context, in Input) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)

	go func() {
		out, err := r.render(in)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.out, res.err
	}
}

func (r *Renderer) render(in Input) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(r.Markdown(in)), &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}

	generated := in.Generated
	if generated.IsZero() {
		generated = time.Now()
	}

	var out bytes.Buffer
	err := r.page.Execute(&out, pageData{
		Title:          "LaTeX compilation failed",
		Style:          template.CSS(r.style),          // #nosec G203 -- trusted asset
		HighlightStyle: template.CSS(r.highlightStyle), // #nosec G203 -- generated by chroma
		Body:           template.HTML(body.String()),   // #nosec G203 -- goldmark output without raw HTML
		Generated:      generated.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return out.Bytes(), nil
}

// Markdown returns the Markdown source of the report.
func (r *Renderer) Markdown(in Input) string {
	var b strings.Builder

	b.WriteString("# LaTeX compilation failed\n\n")
	b.WriteString("| | |\n|---|---|\n")
	writeRow(&b, "Kind", code(in.Kind))
	if in.Tool != "" {
		writeRow(&b, "Tool", code(in.Tool))
	}
	if in.Passes > 0 {
		writeRow(&b, "Passes", strconv.Itoa(in.Passes))
	}
	writeRow(&b, "Errors", strconv.Itoa(len(in.Errors)))
	b.WriteByte('\n')

	if in.Message != "" {
		b.WriteString("> ")
		b.WriteString(escape(firstLine(in.Message)))
		b.WriteString("\n\n")
	}

	if len(in.Errors) > 0 {
		b.WriteString("## Errors\n\n| File | Line | Message |\n|---|---|---|\n")
		for _, e := range in.Errors {
			line := ""
			if e.Line > 0 {
				line = strconv.Itoa(e.Line)
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", code(e.File), line, code(e.Message))
		}
		b.WriteByte('\n')
	}

	r.writeExcerpt(&b, in)

	if tail := lastLines(in.Log, r.logTailLines); tail != "" {
		b.WriteString("## Log\n\n")
		writeFenced(&b, "text", "", tail)
	}

	return b.String()
}

// writeExcerpt adds the source lines around the first error located in
// in.Source, with the error line highlighted.
func (r *Renderer) writeExcerpt(b *strings.Builder, in Input) {
	if in.Source == "" {
		return
	}
	target := 0
	for _, e := range in.Errors {
		if e.Line > 0 && (e.File == "" || e.File == in.SourceName) {
			target = e.Line
			break
		}
	}
	lines := strings.Split(in.Source, "\n")
	if target == 0 || target > len(lines) {
		return
	}

	start := max(1, target-r.contextLines)
	end := min(len(lines), target+r.contextLines)
	name := in.SourceName
	if name == "" {
		name = "source"
	}

	fmt.Fprintf(b, "## %s, lines %d to %d\n\n", escape(name), start, end)
	attrs := fmt.Sprintf("{hl_lines=[%d]}", target-start+1)
	writeFenced(b, "latex", attrs, strings.Join(lines[start-1:end], "\n"))
}

func writeRow(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", key, value)
}

// writeFenced writes a fenced block whose fence is longer than any backtick
// run inside content.
func writeFenced(b *strings.Builder, lang, attrs, content string) {
	fence := strings.Repeat("`", max(3, longestRun(content, '`')+1))
	b.WriteString(fence)
	b.WriteString(lang)
	if attrs != "" {
		b.WriteByte(' ')
		b.WriteString(attrs)
	}
	b.WriteByte('\n')
	b.WriteString(strings.TrimRight(content, "\n"))
	b.WriteByte('\n')
	b.WriteString(fence)
	b.WriteString("\n\n")
}

// code renders s as an inline code span safe inside a table cell.
func code(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(strings.ReplaceAll(s, "\r", " "), "\n", " ")
	ticks := strings.Repeat("`", longestRun(s, '`')+1)
	pad := ""
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		pad = " "
	}
	return ticks + pad + strings.ReplaceAll(s, "|", `\|`) + pad + ticks
}

// escape backslash-escapes every ASCII punctuation character.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func longestRun(s string, c byte) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return longest
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// lastLines returns at most n trailing lines of s, without a trailing newline.
func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

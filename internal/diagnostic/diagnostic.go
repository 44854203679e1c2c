// Package diagnostic turns the captured output of a failed compilation into a
// bounded, classified log with the TeX errors pulled out.
package diagnostic

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxBytes bounds Diagnostic.Log when no limit is given.
const DefaultMaxBytes = 64 * 1024

// MaxErrors caps the number of parsed errors kept.
const MaxErrors = 20

// TimeoutMarker prefixes the line appended to captured output when the
// compilation deadline expires.
const TimeoutMarker = "tex2pdf: compilation timed out"

// Kind classifies a failed compilation.
type Kind string

const (
	KindCompileFailed Kind = "compile_failed"
	KindTimeout       Kind = "timeout"
)

// LogError is one error reported by TeX.
type LogError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

func (e LogError) String() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	default:
		return e.Message
	}
}

// Diagnostic is the bounded failure report for one compilation.
type Diagnostic struct {
	Kind      Kind
	Log       string
	Errors    []LogError
	Truncated bool
}

// Summary returns a one-line description of the failure.
func (d Diagnostic) Summary() string {
	if d.Kind == KindTimeout {
		return "compilation timed out"
	}
	if len(d.Errors) > 0 {
		return d.Errors[0].String()
	}
	return "compilation failed"
}

var (
	// ./main.tex:12: Undefined control sequence.
	fileLinePattern = regexp.MustCompile(`^(\S[^:]*):(\d+): (.+)$`)
	// ! LaTeX Error: Environment lemma undefined.
	bangPattern = regexp.MustCompile(`^! (.+)$`)
	// l.12 \begin{lemma}
	lineRefPattern = regexp.MustCompile(`^l\.(\d+)`)
)

// How many lines after "! message" to search for the "l.N" reference.
const lineRefLookahead = 12

// TimeoutNotice returns the marker line recorded for an expired deadline.
func TimeoutNotice(budget time.Duration) string {
	return fmt.Sprintf("%s after %s", TimeoutMarker, budget)
}

// Extract assembles the diagnostic for a failed run. output is the captured
// console text; the tool's log at logPath is appended when it exists.
// Classification sees the console text and error parsing the full text;
// truncation to
// maxBytes (DefaultMaxBytes when <= 0) happens last and keeps the tail.
func Extract(output, logPath string, maxBytes int) Diagnostic {
	text := output
	if logPath != "" {
		if data, err := os.ReadFile(logPath); err == nil && len(data) > 0 {
			text = appendLabeled(text, filepath.Base(logPath), string(data))
		}
	}
	text = strings.ToValidUTF8(text, "�")

	d := Diagnostic{Kind: Classify(output), Errors: ParseErrors(text)}
	d.Log, d.Truncated = Truncate(text, maxBytes)
	return d
}

// Classify reports KindTimeout when the last non-empty line of text is the
// timeout marker, which is only ever appended after the final pass.
func Classify(text string) Kind {
	last := strings.TrimRight(text, "\r\n")
	if i := strings.LastIndexByte(last, '\n'); i >= 0 {
		last = last[i+1:]
	}
	if strings.HasPrefix(last, TimeoutMarker) {
		return KindTimeout
	}
	return KindCompileFailed
}

// ParseErrors extracts file-line-error and "!" style errors, deduplicated
// and capped at MaxErrors.
func ParseErrors(text string) []LogError {
	lines := strings.Split(text, "\n")
	seen := make(map[LogError]bool)
	var errs []LogError

	add := func(e LogError) bool {
		e.File = strings.TrimPrefix(e.File, "./")
		if seen[e] {
			return true
		}
		seen[e] = true
		errs = append(errs, e)
		return len(errs) < MaxErrors
	}

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		if m := fileLinePattern.FindStringSubmatch(line); m != nil {
			n, _ := strconv.Atoi(m[2])
			if !add(LogError{File: m[1], Line: n, Message: strings.TrimSpace(m[3])}) {
				break
			}
			continue
		}
		if m := bangPattern.FindStringSubmatch(line); m != nil {
			e := LogError{Message: strings.TrimSpace(m[1]), Line: lineRef(lines, i+1)}
			if !add(e) {
				break
			}
		}
	}
	return errs
}

func lineRef(lines []string, from int) int {
	end := min(from+lineRefLookahead, len(lines))
	for _, l := range lines[from:end] {
		if m := lineRefPattern.FindStringSubmatch(l); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n
		}
	}
	return 0
}

// Truncate keeps the tail of text, starting at a line boundary where one
// exists, behind a note with the dropped byte count. The result, note
// included, never exceeds maxBytes; a limit too small for the note yields
// the bare tail.
func Truncate(text string, maxBytes int) (string, bool) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(text) <= maxBytes {
		return text, false
	}

	// The dropped count never exceeds len(text), so this is the longest note.
	budget := maxBytes - len(truncationNote(len(text)))
	if budget <= 0 {
		return tailOf(text, maxBytes), true
	}
	tail := tailOf(text, budget)
	return truncationNote(len(text)-len(tail)) + tail, true
}

func truncationNote(dropped int) string {
	return fmt.Sprintf("[... %d bytes truncated ...]\n", dropped)
}

// tailOf returns at most n trailing bytes of text without splitting a rune.
func tailOf(text string, n int) string {
	tail := text[len(text)-n:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		return tail[i+1:]
	}
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	return tail
}

func appendLabeled(text, name, content string) string {
	var b strings.Builder
	b.Grow(len(text) + len(name) + len(content) + 16)
	b.WriteString(text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("--- ")
	b.WriteString(name)
	b.WriteString(" ---\n")
	b.WriteString(content)
	return b.String()
}

// Package fallback injects guarded definitions for theorem-like environments
// and notation macros that a LaTeX document uses but never defines.
//
// Patching is a pure source-to-source transform. It never fails: when the
// document has no \begin{document}, was already patched, or needs nothing,
// the input is returned unchanged.
//
// Detection is heuristic. A definition keyword naming a construct (for example
// \newtheorem{lemma} or \newcommand{\R}) is trusted as a working definition
// even when the definition itself is malformed; the construct is then left
// to the document. Injected definitions are guarded so that a detection miss
// cannot produce a duplicate definition.
package fallback

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
)

// Markers delimiting the injected block. The begin marker also makes
// patching idempotent.
const (
	BeginMarker = "% tex2pdf: fallback definitions"
	EndMarker   = "% tex2pdf: end fallback definitions"
)

var (
	// Unescaped % up to end of line.
	commentPattern = regexp.MustCompile(`(?m)(^|[^\\])%.*$`)

	bodyPattern = regexp.MustCompile(`\\begin\s*\{document\}`)
)

// Patch is the outcome of patching one source.
type Patch struct {
	Source   string   // Patched source (input unchanged if nothing applied)
	Applied  []string // Names of rules that were injected
	Packages []string // Packages declared by the injected block
}

// Changed reports whether the source was modified.
func (p Patch) Changed() bool {
	return len(p.Applied) > 0
}

// Patcher applies fallback rules to LaTeX source.
// The zero value applies no rules.
type Patcher struct {
	Rules []Rule
}

// NewPatcher creates a Patcher. With no rules, DefaultRules is used.
func NewPatcher(rules ...Rule) *Patcher {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Patcher{Rules: rules}
}

// Patch returns source with a fallback block spliced immediately before the
// first uncommented \begin{document}. Bytes outside the block are preserved.
func (p *Patcher) Patch(ctx context.Context, source string) Patch {
	out := Patch{Source: source}

	if ctx.Err() != nil {
		return out
	}
	if strings.Contains(source, BeginMarker) {
		return out
	}

	insertAt := bodyIndex(source)
	if insertAt < 0 {
		return out
	}

	stripped := StripComments(source)
	var definitions []string
	for _, rule := range p.Rules {
		if rule.Uses == nil || !rule.Uses(stripped) {
			continue
		}
		if rule.Defines != nil && rule.Defines(stripped) {
			continue
		}
		for _, pkg := range rule.Requires {
			if !containsString(out.Packages, pkg) && !LoadsPackage(pkg)(stripped) {
				out.Packages = append(out.Packages, pkg)
			}
		}
		if rule.Definition != "" {
			definitions = append(definitions, rule.Definition)
		}
		out.Applied = append(out.Applied, rule.Name)
	}

	if len(out.Packages) == 0 && len(definitions) == 0 {
		out.Applied = nil
		out.Packages = nil
		return out
	}

	block := buildBlock(out.Packages, definitions)
	if insertAt > 0 && source[insertAt-1] != '\n' {
		block = "\n" + block
	}
	out.Source = source[:insertAt] + block + source[insertAt:]
	return out
}

// StripComments removes LaTeX line comments (unescaped % to end of line).
// Line structure is kept so offsets of later lines shift but lines do not merge.
func StripComments(source string) string {
	return commentPattern.ReplaceAllString(source, "$1")
}

// IsDocumentFile reports whether a project file is LaTeX source that the
// patcher may rewrite.
func IsDocumentFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tex", ".ltx":
		return true
	}
	return false
}

// bodyIndex returns the byte offset of the first \begin{document} that is not
// inside a comment, or -1.
func bodyIndex(source string) int {
	offset := 0
	for _, line := range strings.SplitAfter(source, "\n") {
		if loc := bodyPattern.FindStringIndex(line); loc != nil {
			if !commentedBefore(line, loc[0]) {
				return offset + loc[0]
			}
		}
		offset += len(line)
	}
	return -1
}

// commentedBefore reports whether an unescaped % occurs in line before pos.
func commentedBefore(line string, pos int) bool {
	for i := 0; i < pos; i++ {
		if line[i] != '%' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= 0 && line[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return true
		}
	}
	return false
}

func buildBlock(packages, definitions []string) string {
	var b strings.Builder
	b.WriteString(BeginMarker)
	b.WriteByte('\n')
	for _, pkg := range packages {
		b.WriteString(`\usepackage{`)
		b.WriteString(pkg)
		b.WriteString("}\n")
	}
	for _, def := range definitions {
		b.WriteString(def)
		b.WriteByte('\n')
	}
	b.WriteString(EndMarker)
	b.WriteByte('\n')
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

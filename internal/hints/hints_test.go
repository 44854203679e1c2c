package hints

// Notes:
// - ForToolingMissing tests cannot use t.Parallel() because they:
//   1. Use t.Setenv() which modifies process environment
//   2. Modify the package-level IsInContainer variable
// - The windows and darwin install hints depend on runtime.GOOS and are only
//   asserted loosely.

import (
	"runtime"
	"strings"
	"testing"
)

func TestForToolingMissing_InContainer(t *testing.T) {
	orig := IsInContainer
	defer func() { IsInContainer = orig }()
	IsInContainer = func() bool { return true }

	t.Setenv("TEX2PDF_ENGINE", "")

	hint := ForToolingMissing()

	if !strings.HasPrefix(hint, "\n  hint: ") {
		t.Errorf("expected hint prefix, got %q", hint)
	}
	if !strings.Contains(hint, "TeX Live image") {
		t.Errorf("expected container suggestion, got %q", hint)
	}
	if !strings.Contains(hint, "--engine") {
		t.Errorf("expected --engine suggestion, got %q", hint)
	}
}

func TestForToolingMissing_Host(t *testing.T) {
	orig := IsInContainer
	defer func() { IsInContainer = orig }()
	IsInContainer = func() bool { return false }

	t.Setenv("TEX2PDF_ENGINE", "/opt/tex/pdflatex")

	hint := ForToolingMissing()

	if strings.Contains(hint, "--engine") {
		t.Errorf("engine already configured, got %q", hint)
	}
	if runtime.GOOS == "linux" && !strings.Contains(hint, "texlive-latex-extra") {
		t.Errorf("expected TeX Live suggestion on linux, got %q", hint)
	}
	if strings.Count(hint, "hint:") != 1 {
		t.Errorf("hints should be joined into one line, got %q", hint)
	}
}

func TestForCompileFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		hasLog    bool
		hasReport bool
		want      string
	}{
		{"nothing requested", false, false, "--log"},
		{"log only", true, false, "--report"},
		{"report only", false, true, "--log"},
		{"both", true, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ForCompileFailed(tt.hasLog, tt.hasReport)
			if tt.want == "" {
				if got != "" {
					t.Errorf("ForCompileFailed() = %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("ForCompileFailed() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestForConfigNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"no user path", []string{"x.yaml"}, "use --config /path/to/file.yaml"},
		{
			"user path",
			[]string{"x.yaml", "/home/u/.config/go-tex2pdf/x.yaml"},
			"or create /home/u/.config/go-tex2pdf/x.yaml",
		},
		{
			"windows user path",
			[]string{`C:\Users\u\.config\go-tex2pdf\x.yaml`},
			`or create C:\Users\u\.config\go-tex2pdf\x.yaml`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ForConfigNotFound(tt.paths); !strings.Contains(got, tt.want) {
				t.Errorf("ForConfigNotFound() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestForMainFile(t *testing.T) {
	t.Parallel()

	if got := ForMainFile(nil); !strings.Contains(got, "--main") {
		t.Errorf("ForMainFile(nil) = %q", got)
	}
	got := ForMainFile([]string{"paper.tex", "thesis.tex"})
	if !strings.Contains(got, "candidates: paper.tex, thesis.tex") {
		t.Errorf("ForMainFile() = %q", got)
	}
}

func TestStaticHints(t *testing.T) {
	t.Parallel()

	for name, hint := range map[string]string{
		"timeout":     ForTimeout(),
		"output dir":  ForOutputDirectory(),
		"unsafe path": ForUnsafePath(),
	} {
		if !strings.HasPrefix(hint, "\n  hint: ") {
			t.Errorf("%s hint %q lacks prefix", name, hint)
		}
	}
}

func TestFormatHints_Empty(t *testing.T) {
	t.Parallel()

	if got := formatHints(nil); got != "" {
		t.Errorf("formatHints(nil) = %q, want empty", got)
	}
	if got := format(""); got != "" {
		t.Errorf("format(\"\") = %q, want empty", got)
	}
}

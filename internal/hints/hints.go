// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"runtime"
	"strings"

	"github.com/alnah/go-tex2pdf/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ForToolingMissing returns hints for a host without latexmk or an engine.
func ForToolingMissing() string {
	var hints []string

	switch {
	case IsInContainer():
		hints = append(hints, "use a TeX Live image or install texlive-latex-extra and latexmk")
	case runtime.GOOS == "windows":
		hints = append(hints, "install MiKTeX or TeX Live and reopen the terminal")
	case runtime.GOOS == "darwin":
		hints = append(hints, "install MacTeX (brew install --cask mactex-no-gui)")
	default:
		hints = append(hints, "install TeX Live (texlive-latex-extra, latexmk)")
	}

	if os.Getenv("TEX2PDF_ENGINE") == "" {
		hints = append(hints, "use --engine or TEX2PDF_ENGINE for a binary outside PATH")
	}

	return formatHints(hints)
}

// ForTimeout returns a hint about increasing timeout for slow operations.
func ForTimeout() string {
	return format("for large documents, use --timeout flag")
}

// ForCompileFailed returns a hint pointing at the full log and report.
// Empty when the user already asked for both.
func ForCompileFailed(hasLog, hasReport bool) string {
	switch {
	case hasLog && hasReport:
		return ""
	case hasLog:
		return format("use --report report.html for a readable summary")
	default:
		return format("use --log main.log to keep the full compiler log")
	}
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in ~/.config/go-tex2pdf/.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if strings.Contains(filepathToSlash(p), ".config/go-tex2pdf") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForOutputDirectory returns hints for output directory creation errors.
func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// ForUnsafePath returns a hint for rejected project file paths.
func ForUnsafePath() string {
	return format("project paths must be relative and stay inside the project directory")
}

// ForMainFile returns hints for a main file that is not in the project.
func ForMainFile(candidates []string) string {
	if len(candidates) == 0 {
		return format("use --main to name the root .tex file")
	}
	return format("use --main; candidates: " + strings.Join(candidates, ", "))
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}

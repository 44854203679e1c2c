package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-tex2pdf/internal/fileutil"
	"github.com/alnah/go-tex2pdf/internal/hints"
)

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"`
	Tools    toolsInfo  `json:"tools"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// toolInfo holds detection results for one TeX tool.
type toolInfo struct {
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// toolsInfo holds the full-build driver and the engine.
type toolsInfo struct {
	FullBuild toolInfo `json:"full_build"`
	Engine    toolInfo `json:"engine"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
}

// systemInfo holds filesystem check results.
type systemInfo struct {
	WorkDir         string `json:"work_dir"`
	WorkDirWritable bool   `json:"work_dir_writable"`
	SupportDir      string `json:"support_dir,omitempty"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(ctx context.Context, args []string, env *Environment) int {
	var jsonOutput bool
	common := &commonFlags{}
	fs := buildDoctorFlagSet(&jsonOutput, common)
	if err := parseFlags(fs, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printDoctorUsage(env.Stdout)
			return ExitSuccess
		}
		fmt.Fprintln(env.Stderr, err)
		return exitCodeFor(err)
	}

	cfg, err := resolveConfig(common, nil, env)
	if err != nil {
		fmt.Fprintln(env.Stderr, withHints(err, common, nil))
		return exitCodeFor(err)
	}
	logger := newLogger(io.Discard, cfg.Log, true)
	compiler := env.NewCompiler(compilerOptions(cfg, logger, nil)...)

	result := &doctorResult{
		Status: statusReady,
		Env:    envInfo{OS: runtime.GOOS, Arch: runtime.GOARCH},
		System: systemInfo{WorkDir: cfg.Compile.WorkDir, SupportDir: cfg.Compile.SupportDir},
	}
	checkTools(ctx, result, compiler, env)
	checkEnvironment(result)
	checkSystem(result)

	if len(result.Errors) > 0 {
		result.Status = statusErrors
	} else if len(result.Warnings) > 0 {
		result.Status = statusWarnings
	}

	if jsonOutput {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == statusErrors {
		return ExitGeneral
	}
	return ExitSuccess
}

// checkTools probes latexmk and the engine and reads their versions.
func checkTools(ctx context.Context, result *doctorResult, compiler Compiler, env *Environment) {
	status := compiler.Tools(ctx)
	result.Tools.FullBuild = toolInfo{Name: status.FullBuild, Path: status.FullBuildPath, Found: status.FullBuildPath != ""}
	result.Tools.Engine = toolInfo{Name: status.Engine, Path: status.EnginePath, Found: status.EnginePath != ""}

	for _, t := range []*toolInfo{&result.Tools.FullBuild, &result.Tools.Engine} {
		if t.Found && env.ToolVersion != nil {
			t.Version = env.ToolVersion(ctx, t.Path)
		}
	}

	switch {
	case !status.Available():
		result.Errors = append(result.Errors,
			fmt.Sprintf("neither %s nor %s found in PATH", status.FullBuild, status.Engine))
	case !result.Tools.FullBuild.Found:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s not found; %s runs a fixed number of passes and bibliographies are not built", status.FullBuild, status.Engine))
	case !result.Tools.Engine.Found:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s not found; %s may not be able to run it", status.Engine, status.FullBuild))
	}
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult) {
	result.Env.Container, result.Env.ContainerHint = isContainer()

	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer() (bool, string) {
	if os.Getenv("TEX2PDF_CONTAINER") == "1" {
		return true, "TEX2PDF_CONTAINER=1"
	}
	if hints.IsInContainer() {
		return true, "/.dockerenv"
	}
	if v := os.Getenv("container"); v != "" {
		return true, "container=" + v
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkSystem verifies the workspace parent directory is writable and the
// support directory exists.
func checkSystem(result *doctorResult) {
	dir := result.System.WorkDir
	if dir == "" {
		dir = os.TempDir()
		result.System.WorkDir = dir
	}
	if err := fileutil.CheckWritable(dir); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("work directory not writable: %s", dir))
	} else {
		result.System.WorkDirWritable = true
	}

	if sd := result.System.SupportDir; sd != "" {
		if info, err := os.Stat(sd); err != nil || !info.IsDir() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("support directory not found: %s", sd))
		}
	}
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "tex2pdf doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TeX toolchain")
	for _, t := range []toolInfo{r.Tools.FullBuild, r.Tools.Engine} {
		if !t.Found {
			fmt.Fprintf(w, "  [WARN] %s: not found\n", t.Name)
			continue
		}
		fmt.Fprintf(w, "  [OK] %s: %s\n", t.Name, t.Path)
		if t.Version != "" {
			fmt.Fprintf(w, "       %s\n", t.Version)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	if r.System.WorkDirWritable {
		fmt.Fprintf(w, "  [OK] Work directory: %s (writable)\n", r.System.WorkDir)
	} else {
		fmt.Fprintf(w, "  [ERROR] Work directory: %s (not writable)\n", r.System.WorkDir)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		if !r.Tools.FullBuild.Found && !r.Tools.Engine.Found {
			fmt.Fprintln(w, hints.ForToolingMissing())
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to compile")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}

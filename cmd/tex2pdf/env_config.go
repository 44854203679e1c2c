package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-tex2pdf/internal/config"
)

// envPrefix prefixes every recognized environment variable.
const envPrefix = "TEX2PDF_"

// envConfig holds configuration from environment variables.
// Provides CI/CD and container overrides without requiring YAML files.
type envConfig struct {
	// Compilation
	ConfigPath    string        // TEX2PDF_CONFIG: config file name or path
	Timeout       time.Duration // TEX2PDF_TIMEOUT: compilation budget
	Engine        string        // TEX2PDF_ENGINE: pdflatex, xelatex, lualatex or a path
	FullBuildTool string        // TEX2PDF_FULL_BUILD_TOOL: latexmk or a path
	Workers       int           // TEX2PDF_WORKERS: concurrent compilations
	WorkDir       string        // TEX2PDF_WORK_DIR: parent of workspaces
	SupportDir    string        // TEX2PDF_SUPPORT_DIR: shared classes and styles

	// Service and output
	Addr        string // TEX2PDF_ADDR: listen address for serve
	LogLevel    string // TEX2PDF_LOG_LEVEL: debug, info, warn, error
	LogFormat   string // TEX2PDF_LOG_FORMAT: text, json
	ReportStyle string // TEX2PDF_REPORT_STYLE: report style name or CSS path
	AssetsPath  string // TEX2PDF_ASSETS_PATH: custom asset directory
}

// knownEnvVars lists valid TEX2PDF_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"TEX2PDF_CONFIG":          true,
	"TEX2PDF_TIMEOUT":         true,
	"TEX2PDF_ENGINE":          true,
	"TEX2PDF_FULL_BUILD_TOOL": true,
	"TEX2PDF_WORKERS":         true,
	"TEX2PDF_WORK_DIR":        true,
	"TEX2PDF_SUPPORT_DIR":     true,
	"TEX2PDF_ADDR":            true,
	"TEX2PDF_LOG_LEVEL":       true,
	"TEX2PDF_LOG_FORMAT":      true,
	"TEX2PDF_REPORT_STYLE":    true,
	"TEX2PDF_ASSETS_PATH":     true,
	// Read by the doctor container check
	"TEX2PDF_CONTAINER": true,
}

// loadEnvConfig reads configuration from environment variables.
// Malformed numbers and durations are ignored.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath:    os.Getenv("TEX2PDF_CONFIG"),
		Engine:        os.Getenv("TEX2PDF_ENGINE"),
		FullBuildTool: os.Getenv("TEX2PDF_FULL_BUILD_TOOL"),
		WorkDir:       os.Getenv("TEX2PDF_WORK_DIR"),
		SupportDir:    os.Getenv("TEX2PDF_SUPPORT_DIR"),
		Addr:          os.Getenv("TEX2PDF_ADDR"),
		LogLevel:      os.Getenv("TEX2PDF_LOG_LEVEL"),
		LogFormat:     os.Getenv("TEX2PDF_LOG_FORMAT"),
		ReportStyle:   os.Getenv("TEX2PDF_REPORT_STYLE"),
		AssetsPath:    os.Getenv("TEX2PDF_ASSETS_PATH"),
	}

	if timeout := os.Getenv("TEX2PDF_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	if workers := os.Getenv("TEX2PDF_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized TEX2PDF_* variables.
// Helps catch typos like TEX2PDF_ENGIN.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, envPrefix) {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig overrides config values with the environment variables
// that are set. Precedence: CLI flags > env vars > config file > defaults
// (CLI flags are applied later by each command).
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	if env.Timeout > 0 {
		cfg.Compile.Timeout = env.Timeout.String()
	}
	if env.Engine != "" {
		cfg.Compile.Engine = env.Engine
	}
	if env.FullBuildTool != "" {
		cfg.Compile.FullBuildTool = env.FullBuildTool
	}
	if env.Workers > 0 {
		cfg.Compile.Workers = env.Workers
	}
	if env.WorkDir != "" {
		cfg.Compile.WorkDir = env.WorkDir
	}
	if env.SupportDir != "" {
		cfg.Compile.SupportDir = env.SupportDir
	}

	if env.Addr != "" {
		cfg.Server.Addr = env.Addr
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}
	if env.ReportStyle != "" {
		cfg.Report.Style = env.ReportStyle
	}
	if env.AssetsPath != "" {
		cfg.Assets.BasePath = env.AssetsPath
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/alnah/go-tex2pdf/internal/fallback"
	"github.com/alnah/go-tex2pdf/internal/fileutil"
	"github.com/alnah/go-tex2pdf/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// AppDir is the directory under the user config dir searched for configs.
const AppDir = "go-tex2pdf"

// Field limits.
const (
	MaxPathLength  = 4096
	MaxAddrLength  = 256
	MaxPasses      = 10
	MinLogBytes    = 1024
	MaxLogBytes    = 16 << 20
	MaxBodyBytes   = 512 << 20
	MaxTimeout     = time.Hour
	MaxRuleExclude = 64
)

// Engines accepted by name. Any other value must be a path.
var Engines = []string{"pdflatex", "xelatex", "lualatex"}

// Config holds all configuration for compilation, the CLI and the service.
type Config struct {
	Compile  CompileConfig  `yaml:"compile"`
	Fallback FallbackConfig `yaml:"fallback"`
	Server   ServerConfig   `yaml:"server"`
	Report   ReportConfig   `yaml:"report"`
	Assets   AssetsConfig   `yaml:"assets"`
	Log      LogConfig      `yaml:"log"`
}

// CompileConfig defines toolchain options.
type CompileConfig struct {
	Timeout       string `yaml:"timeout"`       // Go duration, e.g. "60s"
	MaxPasses     int    `yaml:"maxPasses"`     // Engine passes without latexmk
	MaxLogBytes   int    `yaml:"maxLogBytes"`   // Bound on returned logs
	Engine        string `yaml:"engine"`        // pdflatex, xelatex, lualatex or a path
	FullBuildTool string `yaml:"fullBuildTool"` // latexmk or a path
	WorkDir       string `yaml:"workDir"`       // Parent of workspaces (empty = system temp)
	SupportDir    string `yaml:"supportDir"`    // Extra TEXINPUTS directory
	Workers       int    `yaml:"workers"`       // Concurrent compilations (0 = auto)
}

// FallbackConfig defines source patching options.
type FallbackConfig struct {
	Disable bool     `yaml:"disable"`
	Exclude []string `yaml:"exclude"` // Rule names to skip, e.g. "lemma" or "\R"
}

// ServerConfig defines HTTP service options.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxTimeout   string `yaml:"maxTimeout"`   // Cap on per-request timeout overrides
	QueueTimeout string `yaml:"queueTimeout"` // Wait for a free slot before 503
	MaxBodyBytes int64  `yaml:"maxBodyBytes"`
}

// ReportConfig defines HTML failure report options.
type ReportConfig struct {
	Style string `yaml:"style"` // Style name or CSS file path
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // Empty = use embedded assets
}

// LogConfig defines logging options.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Compile: CompileConfig{
			Timeout:       "60s",
			MaxPasses:     3,
			MaxLogBytes:   64 * 1024,
			Engine:        "pdflatex",
			FullBuildTool: "latexmk",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			MaxTimeout:   "5m",
			QueueTimeout: "10s",
			MaxBodyBytes: 32 << 20,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks values and lengths. Called automatically by LoadConfig,
// but available for consumers who construct Config manually.
func (c *Config) Validate() error {
	if err := validateDuration("compile.timeout", c.Compile.Timeout); err != nil {
		return err
	}
	if c.Compile.MaxPasses != 0 && (c.Compile.MaxPasses < 1 || c.Compile.MaxPasses > MaxPasses) {
		return fmt.Errorf("%w: compile.maxPasses must be between 1 and %d, got %d", ErrInvalidValue, MaxPasses, c.Compile.MaxPasses)
	}
	if c.Compile.MaxLogBytes != 0 && (c.Compile.MaxLogBytes < MinLogBytes || c.Compile.MaxLogBytes > MaxLogBytes) {
		return fmt.Errorf("%w: compile.maxLogBytes must be between %d and %d, got %d", ErrInvalidValue, MinLogBytes, MaxLogBytes, c.Compile.MaxLogBytes)
	}
	if c.Compile.Workers < 0 {
		return fmt.Errorf("%w: compile.workers must not be negative", ErrInvalidValue)
	}
	if e := c.Compile.Engine; e != "" && !slices.Contains(Engines, e) && !fileutil.IsFilePath(e) {
		return fmt.Errorf("%w: compile.engine %q (must be %s, or a path)", ErrInvalidValue, e, strings.Join(Engines, ", "))
	}
	for field, value := range map[string]string{
		"compile.engine":        c.Compile.Engine,
		"compile.fullBuildTool": c.Compile.FullBuildTool,
		"compile.workDir":       c.Compile.WorkDir,
		"compile.supportDir":    c.Compile.SupportDir,
		"report.style":          c.Report.Style,
		"assets.basePath":       c.Assets.BasePath,
	} {
		if err := validateFieldLength(field, value, MaxPathLength); err != nil {
			return err
		}
	}

	if len(c.Fallback.Exclude) > MaxRuleExclude {
		return fmt.Errorf("%w: fallback.exclude has %d entries (max %d)", ErrInvalidValue, len(c.Fallback.Exclude), MaxRuleExclude)
	}
	known := fallback.RuleNames(fallback.DefaultRules())
	for _, name := range c.Fallback.Exclude {
		if !slices.Contains(known, name) && !slices.Contains(known, `\`+name) {
			return fmt.Errorf("%w: fallback.exclude: unknown rule %q", ErrInvalidValue, name)
		}
	}

	if err := validateFieldLength("server.addr", c.Server.Addr, MaxAddrLength); err != nil {
		return err
	}
	if err := validateDuration("server.maxTimeout", c.Server.MaxTimeout); err != nil {
		return err
	}
	if err := validateDuration("server.queueTimeout", c.Server.QueueTimeout); err != nil {
		return err
	}
	if c.Server.MaxBodyBytes < 0 || c.Server.MaxBodyBytes > MaxBodyBytes {
		return fmt.Errorf("%w: server.maxBodyBytes must be between 0 and %d", ErrInvalidValue, MaxBodyBytes)
	}
	if t, mt := c.Compile.TimeoutDuration(), c.Server.MaxTimeoutDuration(); t > 0 && mt > 0 && mt < t {
		return fmt.Errorf("%w: server.maxTimeout (%s) is below compile.timeout (%s)", ErrInvalidValue, mt, t)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q (must be debug, info, warn, or error)", ErrInvalidValue, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q (must be text or json)", ErrInvalidValue, c.Log.Format)
	}

	return nil
}

// TimeoutDuration returns compile.timeout, or 0 when unset or invalid.
func (c CompileConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// MaxTimeoutDuration returns server.maxTimeout, or 0 when unset or invalid.
func (c ServerConfig) MaxTimeoutDuration() time.Duration {
	return parseDuration(c.MaxTimeout)
}

// QueueTimeoutDuration returns server.queueTimeout, or 0 when unset or invalid.
func (c ServerConfig) QueueTimeoutDuration() time.Duration {
	return parseDuration(c.QueueTimeout)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// validateDuration accepts an empty value or a positive duration up to MaxTimeout.
func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	if d <= 0 || d > MaxTimeout {
		return fmt.Errorf("%w: %s must be between 0 and %s, got %s", ErrInvalidValue, field, MaxTimeout, d)
	}
	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Values missing from the file keep their defaults.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !fileutil.IsFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := yamlutil.DecodeFileStrict(configPath, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SearchPaths returns the locations LoadConfig tries for a config name.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/go-tex2pdf/
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)
	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, AppDir, name+ext))
		}
	}
	return paths
}

// resolveConfigPath returns the first existing file among SearchPaths(name).
func resolveConfigPath(name string) (string, error) {
	tried := SearchPaths(name)
	for _, p := range tried {
		if fileutil.FileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(tried, ", "))
}

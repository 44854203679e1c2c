// Package logfields holds the canonical structured log keys used across the
// compilation pipeline, the CLI and the HTTP service.
package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRequestID  = "request_id"
	KeyMode       = "mode"
	KeyTool       = "tool"
	KeyPass       = "pass"
	KeyKind       = "kind"
	KeyDurationMS = "duration_ms"
	KeyWorkspace  = "workspace"
	KeyMainFile   = "main_file"
	KeyFiles      = "files"
	KeyApplied    = "applied"
	KeyPackages   = "packages"
	KeyPath       = "path"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RequestID(id string) slog.Attr    { return slog.String(KeyRequestID, id) }
func Mode(m string) slog.Attr          { return slog.String(KeyMode, m) }
func Tool(name string) slog.Attr       { return slog.String(KeyTool, name) }
func Pass(n int) slog.Attr             { return slog.Int(KeyPass, n) }
func Kind(k string) slog.Attr          { return slog.String(KeyKind, k) }
func Workspace(dir string) slog.Attr   { return slog.String(KeyWorkspace, dir) }
func MainFile(p string) slog.Attr      { return slog.String(KeyMainFile, p) }
func Files(n int) slog.Attr            { return slog.Int(KeyFiles, n) }
func Applied(names []string) slog.Attr { return slog.Any(KeyApplied, names) }
func Packages(pkgs []string) slog.Attr  { return slog.Any(KeyPackages, pkgs) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }

// Duration reports d in fractional milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d)/float64(time.Millisecond))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

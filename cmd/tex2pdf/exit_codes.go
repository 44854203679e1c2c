package main

import (
	"errors"
	"os"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/assets"
	"github.com/alnah/go-tex2pdf/internal/config"
)

// Exit codes for the tex2pdf CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess   = 0 // Successful compilation
	ExitGeneral   = 1 // General/unexpected error
	ExitUsage     = 2 // Invalid flags, config, or input
	ExitIO        = 3 // File not found, permission denied
	ExitToolchain = 4 // latexmk and the engine are both unavailable
	ExitCompile   = 5 // The document does not compile
	ExitTimeout   = 6 // Compilation budget exceeded
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Toolchain errors (exit 4)
	if errors.Is(err, tex2pdf.ErrToolingMissing) ||
		errors.Is(err, tex2pdf.ErrToolLaunch) {
		return ExitToolchain
	}

	// Budget (exit 6) before compile failure: a timed out run may also have errors.
	if errors.Is(err, tex2pdf.ErrTimeout) {
		return ExitTimeout
	}
	if errors.Is(err, tex2pdf.ErrCompileFailed) {
		return ExitCompile
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, tex2pdf.ErrInvalidInput) ||
		errors.Is(err, tex2pdf.ErrNoFiles) ||
		errors.Is(err, tex2pdf.ErrMainFileNotFound) ||
		errors.Is(err, assets.ErrStyleNotFound) ||
		errors.Is(err, assets.ErrInvalidAssetName) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, ErrUnsupportedShell) {
		return ExitUsage
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrNoInput) {
		return ExitIO
	}

	return ExitGeneral
}

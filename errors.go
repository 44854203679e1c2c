package tex2pdf

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alnah/go-tex2pdf/internal/diagnostic"
	"github.com/alnah/go-tex2pdf/internal/toolchain"
	"github.com/alnah/go-tex2pdf/internal/workspace"
)

// Sentinel errors for library operations.
var (
	ErrToolingMissing   = toolchain.ErrToolingMissing
	ErrToolLaunch       = toolchain.ErrToolLaunch
	ErrCompileFailed    = errors.New("compilation failed")
	ErrTimeout          = errors.New("compilation timed out")
	ErrCanceled         = toolchain.ErrCanceled
	ErrNoFiles          = errors.New("project has no files")
	ErrMainFileNotFound = errors.New("main file not found in project")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")

	// Project validation errors, reported with KindInvalidInput.
	ErrUnsafePath      = workspace.ErrUnsafePath
	ErrDuplicatePath   = workspace.ErrDuplicatePath
	ErrInvalidEncoding = workspace.ErrInvalidEncoding
)

// Kind is the machine-readable failure category of a compilation.
type Kind string

const (
	KindToolingMissing   Kind = "tooling_missing"
	KindCompileFailed    Kind = "compile_failed"
	KindTimeout          Kind = "timeout"
	KindCanceled         Kind = "canceled"
	KindNoFiles          Kind = "no_files"
	KindMainFileNotFound Kind = "main_file_not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindInternal         Kind = "internal"
)

// Fault says who has to act on a failure.
type Fault string

const (
	FaultServer   Fault = "server"   // Host misconfiguration or infrastructure error
	FaultClient   Fault = "client"   // Malformed or abandoned request
	FaultDocument Fault = "document" // Source does not compile
	FaultTimeout  Fault = "timeout"  // Budget exceeded
)

// Fault returns the party responsible for failures of kind k.
func (k Kind) Fault() Fault {
	switch k {
	case KindNoFiles, KindMainFileNotFound, KindInvalidInput, KindCanceled:
		return FaultClient
	case KindCompileFailed:
		return FaultDocument
	case KindTimeout:
		return FaultTimeout
	default:
		return FaultServer
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindToolingMissing:
		return ErrToolingMissing
	case KindCompileFailed:
		return ErrCompileFailed
	case KindTimeout:
		return ErrTimeout
	case KindCanceled:
		return ErrCanceled
	case KindNoFiles:
		return ErrNoFiles
	case KindMainFileNotFound:
		return ErrMainFileNotFound
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return ErrInternal
	}
}

// LogError is one error reported by TeX, as parsed from the log.
type LogError = diagnostic.LogError

// CompileError is a classified compilation failure. Log is set for
// KindCompileFailed and KindTimeout and is bounded in size.
type CompileError struct {
	Kind    Kind
	Message string
	Log     string
	Errors  []LogError
	Tool    string
	Passes  int
	Err     error // Underlying cause, if any
}

func (e *CompileError) Error() string {
	msg := e.Message
	sentinel := e.Kind.sentinel().Error()
	switch {
	case msg == "":
		return sentinel
	case strings.HasPrefix(msg, sentinel):
		return msg
	}
	return fmt.Sprintf("%s: %s", sentinel, msg)
}

// Unwrap exposes the kind's sentinel and the underlying cause to errors.Is.
func (e *CompileError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// KindOf classifies err. Errors that are not a *CompileError (filesystem or
// launch failures, panics) are KindInternal.
func KindOf(err error) Kind {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// validationError maps a workspace validation error to its kind.
func validationError(err error, mainFile string) *CompileError {
	switch {
	case errors.Is(err, workspace.ErrNoFiles):
		return &CompileError{Kind: KindNoFiles, Message: ErrNoFiles.Error(), Err: err}
	case errors.Is(err, workspace.ErrMainNotFound):
		return &CompileError{Kind: KindMainFileNotFound, Message: fmt.Sprintf("%s: %q", ErrMainFileNotFound, mainFile), Err: err}
	default:
		return &CompileError{Kind: KindInvalidInput, Message: err.Error(), Err: err}
	}
}

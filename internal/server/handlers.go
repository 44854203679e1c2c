package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tex2pdf "github.com/alnah/go-tex2pdf"
	"github.com/alnah/go-tex2pdf/internal/logfields"
	"github.com/alnah/go-tex2pdf/internal/report"
)

// Output formats selected with ?format=.
const (
	formatJSON = "json"
	formatPDF  = "pdf"
	formatHTML = "html"
)

// kindBusy reports that no compile slot freed up within QueueTimeout.
const kindBusy = "busy"

// documentRequest is the body of POST /v1/compile.
type documentRequest struct {
	Source  string `json:"source"`
	Timeout string `json:"timeout,omitempty"` // Go duration, clamped to MaxTimeout
}

// projectRequest is the body of POST /v1/compile/project.
type projectRequest struct {
	Files    []tex2pdf.File `json:"files"`
	MainFile string         `json:"main_file,omitempty"`
	Timeout  string         `json:"timeout,omitempty"`
}

// compileResponse is the JSON body of a successful compilation.
type compileResponse struct {
	RequestID     string   `json:"request_id"`
	PDF           []byte   `json:"pdf"`
	Log           string   `json:"log,omitempty"`
	PatchedSource string   `json:"patched_source,omitempty"`
	Applied       []string `json:"applied"`
	Tool          string   `json:"tool"`
	Passes        int      `json:"passes"`
	DurationMS    int64    `json:"duration_ms"`
}

// errorBody is the JSON body of a failed request.
type errorBody struct {
	RequestID string      `json:"request_id,omitempty"`
	Error     errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string             `json:"kind"`
	Message string             `json:"message"`
	Log     string             `json:"log,omitempty"`
	Errors  []tex2pdf.LogError `json:"errors,omitempty"`
}

// toolsResponse is the body of GET /v1/tools.
type toolsResponse struct {
	tex2pdf.ToolStatus
	Available bool `json:"available"`
}

func (s *Server) handleCompileDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !s.decode(w, r, &req) {
		return
	}
	timeout, ok := s.timeout(w, r, req.Timeout)
	if !ok {
		return
	}

	s.compile(w, r, tex2pdf.MainFileName, req.Source, func(ctx context.Context) (*tex2pdf.Result, error) {
		return s.compiler.CompileDocument(ctx, tex2pdf.Document{Source: req.Source, Timeout: timeout})
	})
}

func (s *Server) handleCompileProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if !s.decode(w, r, &req) {
		return
	}
	timeout, ok := s.timeout(w, r, req.Timeout)
	if !ok {
		return
	}

	mainFile := req.MainFile
	if mainFile == "" {
		mainFile = tex2pdf.MainFileName
	}
	mainSource := ""
	for _, f := range req.Files {
		if f.Path == mainFile && !f.Binary {
			mainSource = f.Content
			break
		}
	}

	s.compile(w, r, mainFile, mainSource, func(ctx context.Context) (*tex2pdf.Result, error) {
		return s.compiler.CompileProject(ctx, tex2pdf.Project{Files: req.Files, MainFile: mainFile, Timeout: timeout})
	})
}

// compile takes a slot, runs fn and writes the result in the requested format.
func (s *Server) compile(w http.ResponseWriter, r *http.Request, sourceName, source string, fn func(context.Context) (*tex2pdf.Result, error)) {
	ctx := r.Context()
	format := requestFormat(r)

	if !s.acquire(ctx) {
		w.Header().Set("Retry-After", "5")
		s.writeError(w, r, http.StatusServiceUnavailable, errorDetail{
			Kind:    kindBusy,
			Message: "all compile slots are busy, retry later",
		})
		return
	}
	defer s.release()

	result, err := fn(ctx)
	if err != nil {
		s.writeCompileError(w, r, format, sourceName, source, err)
		return
	}

	w.Header().Set("X-Tex2pdf-Tool", result.Tool)
	w.Header().Set("X-Tex2pdf-Applied", strings.Join(result.Applied, ","))

	if format == formatPDF {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.Itoa(len(result.PDF)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(result.PDF); err != nil {
			s.log(ctx).Warn("failed writing PDF response", logfields.Error(err))
		}
		return
	}

	applied := result.Applied
	if applied == nil {
		applied = []string{}
	}
	_ = s.writeJSON(w, r, http.StatusOK, compileResponse{
		RequestID:     requestIDFrom(ctx),
		PDF:           result.PDF,
		Log:           result.Log,
		PatchedSource: result.PatchedSource,
		Applied:       applied,
		Tool:          result.Tool,
		Passes:        result.Passes,
		DurationMS:    result.Duration.Milliseconds(),
	})
}

func (s *Server) writeCompileError(w http.ResponseWriter, r *http.Request, format, sourceName, source string, err error) {
	ctx := r.Context()
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log(ctx).Error("compilation error", logfields.Error(err))
	}

	if format == formatHTML && s.reports != nil {
		page, rerr := s.reports.Render(ctx, report.FromError(err, sourceName, source))
		if rerr == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(status)
			_, _ = w.Write(page)
			return
		}
		s.log(ctx).Warn("report rendering failed, falling back to JSON", logfields.Error(rerr))
	}

	detail := errorDetail{Kind: string(tex2pdf.KindOf(err)), Message: err.Error()}
	var ce *tex2pdf.CompileError
	if errors.As(err, &ce) {
		detail.Log = ce.Log
		detail.Errors = ce.Errors
	} else {
		// Unclassified errors may carry host paths.
		detail.Message = tex2pdf.ErrInternal.Error()
	}
	s.writeError(w, r, status, detail)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	status := s.compiler.Tools(r.Context())
	_ = s.writeJSON(w, r, http.StatusOK, toolsResponse{ToolStatus: status, Available: status.Available()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"in_flight": s.slots.InUse(),
		"workers":   s.slots.Size(),
	})
}

// decode reads a JSON body bounded by MaxBodyBytes. On failure it writes the
// error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, errorDetail{
				Kind:    string(tex2pdf.KindInvalidInput),
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		s.writeError(w, r, http.StatusBadRequest, errorDetail{
			Kind:    string(tex2pdf.KindInvalidInput),
			Message: "invalid JSON body: " + err.Error(),
		})
		return false
	}
	return true
}

// timeout parses a requested timeout and clamps it to MaxTimeout. Empty
// selects the compiler default.
func (s *Server) timeout(w http.ResponseWriter, r *http.Request, raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		s.writeError(w, r, http.StatusBadRequest, errorDetail{
			Kind:    string(tex2pdf.KindInvalidInput),
			Message: fmt.Sprintf("invalid timeout %q: must be a positive duration such as 30s", raw),
		})
		return 0, false
	}
	return min(d, s.limits.MaxTimeout), true
}

func requestFormat(r *http.Request) string {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case formatPDF:
		return formatPDF
	case formatHTML:
		return formatHTML
	default:
		return formatJSON
	}
}

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const statusClientClosedRequest = 499

// statusFor maps an error's fault class to an HTTP status.
func statusFor(err error) int {
	kind := tex2pdf.KindOf(err)
	if kind == tex2pdf.KindCanceled {
		return statusClientClosedRequest
	}
	switch kind.Fault() {
	case tex2pdf.FaultClient:
		return http.StatusBadRequest
	case tex2pdf.FaultDocument:
		return http.StatusUnprocessableEntity
	case tex2pdf.FaultTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

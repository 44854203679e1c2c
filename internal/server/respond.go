package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/alnah/go-tex2pdf/internal/logfields"
)

// writeJSON encodes v into a buffer first so a failed encode never sends a
// partial response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		s.log(r.Context()).Error("failed encoding JSON response", logfields.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.log(r.Context()).Warn("failed writing JSON response body", logfields.Error(err))
		return err
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, detail errorDetail) {
	_ = s.writeJSON(w, r, status, errorBody{RequestID: requestIDFrom(r.Context()), Error: detail})
}

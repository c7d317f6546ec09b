package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"example.com/alsepgate/internal/rules"
)

// AcceptanceLine closes a streamed validation: the gate matrix for the tape
// plus the artifacts stored for it.
type AcceptanceLine struct {
	Type        string                 `json:"type"`
	Acceptance  rules.AcceptanceReport `json:"acceptance"`
	Artifacts   []ArtifactRef          `json:"artifacts"`
	Diagnostics int                    `json:"diagnostics"`
}

// ErrorLine ends a stream that failed after the 200 header went out.
type ErrorLine struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ValidationStream writes a /validate?stream=1 response: one diagnostic per
// line, then a single acceptance or error line.
type ValidationStream struct {
	mu          sync.Mutex
	writer      io.Writer
	flusher     http.Flusher
	diagnostics int
}

// NewValidationStream sets the NDJSON content type and flushes after every
// line when the ResponseWriter supports it.
func NewValidationStream(w http.ResponseWriter) *ValidationStream {
	w.Header().Set("Content-Type", "application/x-ndjson")
	var flusher http.Flusher
	if f, ok := w.(http.Flusher); ok {
		flusher = f
	}
	return &ValidationStream{writer: w, flusher: flusher}
}

// WriteDiagnostic emits one rule finding.
func (s *ValidationStream) WriteDiagnostic(d rules.Diagnostic) error {
	if err := s.writeLine(d); err != nil {
		return err
	}
	s.mu.Lock()
	s.diagnostics++
	s.mu.Unlock()
	return nil
}

// WriteAcceptance emits the closing line. Its diagnostics count is the
// number of findings already streamed.
func (s *ValidationStream) WriteAcceptance(rep rules.AcceptanceReport, refs []ArtifactRef) error {
	s.mu.Lock()
	n := s.diagnostics
	s.mu.Unlock()
	if refs == nil {
		refs = []ArtifactRef{}
	}
	return s.writeLine(AcceptanceLine{Type: "acceptance", Acceptance: rep, Artifacts: refs, Diagnostics: n})
}

// WriteError emits the closing line for a failed validation.
func (s *ValidationStream) WriteError(err error) error {
	return s.writeLine(ErrorLine{Type: "error", Error: err.Error()})
}

func (s *ValidationStream) writeLine(v any) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

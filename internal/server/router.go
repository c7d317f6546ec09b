package server

import (
	"net/http"
	"strconv"
	"time"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	handle := func(route string, h http.HandlerFunc) {
		mux.Handle(route, s.instrument(route, h))
	}
	handle("/upload", s.handleUpload)
	handle("/decode", s.handleDecode)
	handle("/validate", s.handleValidate)
	handle("/export", s.handleExport)
	handle("/manifest", s.handleManifest)
	handle("/artifacts/", s.handleArtifacts)
	handle("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.handler())
	return mux
}

// statusRecorder keeps the response code for metrics and passes flushes
// through for NDJSON streaming.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(route string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		h.ServeHTTP(rec, r)
		s.metrics.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

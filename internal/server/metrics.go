package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics lives on a per-server registry so several servers can run
// in one process.
type serverMetrics struct {
	reg *prometheus.Registry

	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	uploadBytes  prometheus.Counter
	frames       *prometheus.CounterVec
	errorFrames  *prometheus.CounterVec
	cacheLookups prometheus.Counter
	cacheMisses  prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &serverMetrics{
		reg: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alsepd_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "alsepd_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		uploadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "alsepd_upload_bytes_total",
			Help: "Bytes received through /upload.",
		}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alsepd_decoded_frames_total",
			Help: "Frames decoded by format.",
		}, []string{"format"}),
		errorFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alsepd_error_frames_total",
			Help: "Decoded frames with a non-zero error mask by format.",
		}, []string{"format"}),
		cacheLookups: f.NewCounter(prometheus.CounterOpts{
			Name: "alsepd_decode_cache_lookups_total",
			Help: "Decode summary cache lookups.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "alsepd_decode_cache_misses_total",
			Help: "Decode summary lookups that decoded the tape.",
		}),
	}
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *serverMetrics) countFrames(format string, frames, errorFrames int) {
	m.frames.WithLabelValues(format).Add(float64(frames))
	m.errorFrames.WithLabelValues(format).Add(float64(errorFrames))
}

package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the recording pipeline
type Metrics struct {
	// Capture metrics
	FramesCaptured  prometheus.Counter
	FramesDiscarded prometheus.Counter

	// Segment metrics
	SegmentsOpened  prometheus.Counter
	SegmentsClosed  prometheus.Counter
	SegmentDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsFinalized prometheus.Counter
}

// New creates and registers all metrics on the given registry. A nil
// registry uses its own private one, which keeps repeated construction in
// tests from colliding on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		FramesCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_frames_captured_total",
			Help: "Total number of audio frames pulled from the device",
		}),
		FramesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_frames_discarded_total",
			Help: "Total number of frames drained and discarded while paused",
		}),
		SegmentsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_segments_opened_total",
			Help: "Total number of segments opened",
		}),
		SegmentsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_segments_closed_total",
			Help: "Total number of segments closed and queued for transcription",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "letstalk_segment_duration_seconds",
			Help:    "Distribution of closed segment durations",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_transcription_requests_total",
			Help: "Total number of transcription requests dispatched",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "letstalk_transcription_duration_seconds",
			Help:    "Distribution of transcription request durations",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "letstalk_sessions_finalized_total",
			Help: "Total number of recording sessions finalized",
		}),
	}
}

// Server exposes the registry on an HTTP debug listener. Long interactive
// sessions can be watched with curl against /metrics.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates the debug listener for the given registry.
func NewServer(address string, reg *prometheus.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	return &Server{
		server: &http.Server{
			Addr:         address,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Metrics listener started", slog.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics listener failed", slog.String("error", err.Error()))
		}
	}()
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

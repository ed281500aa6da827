package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/janwychowaniak/letstalk/internal/audio"
	"github.com/janwychowaniak/letstalk/internal/metrics"
	"github.com/janwychowaniak/letstalk/internal/transcription"
)

// Dispatcher is a single-slot pipeline: one goroutine drains a queue of
// closed segments and runs the backend call for at most one segment at a
// time, strictly in sequence order. It decouples the capture loop from
// network latency: enqueueing never blocks, and the queue grows as needed
// so a slow call on one segment never causes a later one to be skipped.
// Total queued audio is bounded by the session duration cap.
type Dispatcher struct {
	backend    transcription.Backend
	language   string
	sampleRate int
	session    *Session
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Segment
	closed  bool
	done    chan struct{}
}

// NewDispatcher creates a dispatcher for one session. queueDepth sizes the
// initial queue capacity; the queue itself is unbounded.
func NewDispatcher(backend transcription.Backend, session *Session, language string,
	sampleRate int, queueDepth int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {

	if queueDepth < 1 {
		queueDepth = 1
	}

	d := &Dispatcher{
		backend:    backend,
		language:   language,
		sampleRate: sampleRate,
		session:    session,
		logger:     logger,
		metrics:    m,
		pending:    make([]*Segment, 0, queueDepth),
		done:       make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start launches the dispatch goroutine. The goroutine deliberately runs on
// a background context: a cancelled session still awaits in-flight and
// queued dispatches so the final segments are not silently lost. Per-call
// timeouts live in the backend.
func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for {
			d.mu.Lock()
			for len(d.pending) == 0 && !d.closed {
				d.cond.Wait()
			}
			if len(d.pending) == 0 {
				d.mu.Unlock()
				return
			}
			seg := d.pending[0]
			d.pending = d.pending[1:]
			d.mu.Unlock()

			d.dispatch(seg)
		}
	}()
}

// Enqueue hands a closed segment to the dispatch goroutine without
// blocking. Enqueueing after CloseAndWait fails the segment; during a
// session that cannot happen because the recorder closes the dispatcher
// only after the last segment was handed over.
func (d *Dispatcher) Enqueue(seg *Segment) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.session.setOutcome(seg, "", fmt.Errorf("%w: dispatcher closed, segment %d dropped",
			transcription.ErrBackend, seg.Seq))
		d.metrics.TranscriptionFailures.Inc()
		d.logger.Error("Segment enqueued after dispatcher close", slog.Int("segment", seg.Seq))
		return
	}
	d.pending = append(d.pending, seg)
	d.cond.Signal()
	d.mu.Unlock()
}

// CloseAndWait stops accepting segments and blocks until every queued
// segment has an outcome.
func (d *Dispatcher) CloseAndWait() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) dispatch(seg *Segment) {
	start := time.Now()
	d.metrics.TranscriptionRequests.Inc()

	pcm := audio.SamplesToBytes(seg.Samples)
	text, err := d.backend.Transcribe(context.Background(), pcm, d.sampleRate, d.language)

	took := time.Since(start)
	d.metrics.TranscriptionDuration.Observe(took.Seconds())
	d.session.setOutcome(seg, text, err)

	if err != nil {
		d.metrics.TranscriptionFailures.Inc()
		d.logger.Warn("Segment transcription failed",
			slog.Int("segment", seg.Seq),
			slog.String("backend", d.backend.Name()),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Debug("Segment transcribed",
		slog.Int("segment", seg.Seq),
		slog.String("backend", d.backend.Name()),
		slog.Int("chars", len(text)),
		slog.Duration("took", took),
	)
}

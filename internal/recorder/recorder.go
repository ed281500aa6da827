package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/janwychowaniak/letstalk/internal/audio"
	"github.com/janwychowaniak/letstalk/internal/metrics"
	"github.com/janwychowaniak/letstalk/internal/transcription"
	"github.com/janwychowaniak/letstalk/internal/vad"
)

// ErrDevice marks a fatal audio device failure. The session is aborted, but
// segments closed before the failure are still transcribed and returned.
var ErrDevice = errors.New("audio device error")

// Config contains the recording session parameters.
type Config struct {
	FrameSize          int           // samples per frame
	SampleRate         int           // Hz
	AmplitudeThreshold int           // silence threshold on the ±32768 scale
	SilenceWindow      time.Duration // consecutive silence that ends an automatic take
	MaxDuration        time.Duration // hard session cap
	Interactive        bool          // control events come from outside instead of silence
	Language           string        // passed through to the backend
	QueueDepth         int           // closed segments waiting for dispatch
}

// Validate checks the recorder configuration. Invalid values are fatal at
// startup, never mid-session.
func (c *Config) Validate() error {
	if c.FrameSize <= 0 {
		return fmt.Errorf("frame size must be positive, got %d", c.FrameSize)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.AmplitudeThreshold < 1 || c.AmplitudeThreshold > 32767 {
		return fmt.Errorf("amplitude threshold must be between 1 and 32767, got %d", c.AmplitudeThreshold)
	}
	if c.SilenceWindow <= 0 {
		return fmt.Errorf("silence window must be positive, got %v", c.SilenceWindow)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("max duration must be positive, got %v", c.MaxDuration)
	}
	if c.QueueDepth < 1 {
		return fmt.Errorf("queue depth must be at least 1, got %d", c.QueueDepth)
	}
	return nil
}

// FrameDuration returns the play time of one frame.
func (c *Config) FrameDuration() time.Duration {
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Result carries the outcome of one session: the joined transcript plus the
// per-segment records, including any partial results from an aborted run.
type Result struct {
	SessionID      string
	StartedAt      time.Time
	Transcript     string
	Segments       []*Segment
	FailedSegments []int
}

// Recorder is the orchestrator: the single consumer of the frame and event
// channels, and the only writer of the recording state.
type Recorder struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	source   audio.Source
	detector *vad.Detector
	backend  transcription.Backend

	separator string

	// Shared with State() readers. The lock guards state transitions and
	// the open buffer reference only; it is never held across blocking I/O.
	mu    sync.Mutex
	state State
	open  *audio.SegmentBuffer

	session    *Session
	dispatcher *Dispatcher

	totalFrames int
	maxFrames   int
	stopping    atomic.Bool
}

// New creates a recorder over the given source and backend.
func New(config Config, source audio.Source, backend transcription.Backend,
	separator string, logger *slog.Logger, m *metrics.Metrics) (*Recorder, error) {

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}

	detector, err := vad.NewDetector(config.AmplitudeThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}

	maxFrames := int(config.MaxDuration / config.FrameDuration())
	if maxFrames < 1 {
		maxFrames = 1
	}

	return &Recorder{
		config:    config,
		logger:    logger,
		metrics:   m,
		source:    source,
		detector:  detector,
		backend:   backend,
		separator: separator,
		state:     StateReady,
		maxFrames: maxFrames,
	}, nil
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run executes one session to completion and returns its result. In
// automatic mode recording begins immediately and ends on silence or the
// duration cap; in interactive mode the events channel drives the state
// machine. Cancelling ctx acts as a stop event: the open segment is still
// closed, dispatched and awaited.
//
// A device failure aborts the session; Run then returns ErrDevice together
// with the partial result holding every segment closed before the failure.
func (r *Recorder) Run(ctx context.Context, events <-chan Event) (*Result, error) {
	r.session = NewSession()
	r.dispatcher = NewDispatcher(r.backend, r.session, r.config.Language,
		r.config.SampleRate, r.config.QueueDepth, r.logger, r.metrics)
	r.dispatcher.Start()
	r.metrics.SessionsStarted.Inc()

	r.logger.Info("Session started",
		slog.String("session_id", r.session.ID),
		slog.Bool("interactive", r.config.Interactive),
		slog.Duration("max_duration", r.config.MaxDuration),
	)

	if !r.config.Interactive {
		r.openSegment()
		r.setState(StateRecording)
	}

	frames := make(chan frameMsg, 4)
	go r.captureLoop(frames)

	var fatal error

loop:
	for {
		select {
		case <-ctx.Done():
			r.stop()
			break loop

		case ev, ok := <-events:
			if !ok {
				// Listener gone; recording continues until another
				// stop source fires.
				events = nil
				continue
			}
			if r.handleEvent(ev) {
				break loop
			}

		case msg, ok := <-frames:
			if !ok {
				fatal = fmt.Errorf("%w: capture loop ended unexpectedly", ErrDevice)
				r.stop()
				break loop
			}
			if msg.err != nil {
				fatal = fmt.Errorf("%w: %v", ErrDevice, msg.err)
				r.logger.Error("Device failure, aborting session", slog.String("error", msg.err.Error()))
				r.stop()
				break loop
			}
			if r.handleFrame(msg.frame) {
				break loop
			}
		}
	}

	// Teardown: release the device, drain the capture goroutine, then wait
	// for every queued dispatch so no segment is silently lost.
	r.stopping.Store(true)
	if err := r.source.Close(); err != nil {
		r.logger.Warn("Failed to close audio source", slog.String("error", err.Error()))
	}
	for range frames {
	}
	r.dispatcher.CloseAndWait()
	r.metrics.SessionsFinalized.Inc()

	result := &Result{
		SessionID:      r.session.ID,
		StartedAt:      r.session.StartedAt,
		Transcript:     r.session.Transcript(r.separator),
		Segments:       r.session.Segments(),
		FailedSegments: r.session.FailedSegments(),
	}

	r.logger.Info("Session finalized",
		slog.String("session_id", r.session.ID),
		slog.Int("segments", len(result.Segments)),
		slog.Int("failed", len(result.FailedSegments)),
	)

	if fatal != nil {
		r.session.setFatal(fatal)
		return result, fatal
	}
	return result, nil
}

type frameMsg struct {
	frame audio.Frame
	err   error
}

// captureLoop pulls frames from the device at its natural rate and feeds
// the orchestrator. It never decides storage; that is the state machine's
// job. Exits when the device fails or is closed during teardown.
func (r *Recorder) captureLoop(frames chan<- frameMsg) {
	defer close(frames)
	for {
		frame, err := r.source.ReadFrame()
		if err != nil {
			if !r.stopping.Load() {
				frames <- frameMsg{err: err}
			}
			return
		}
		frames <- frameMsg{frame: frame}
	}
}

// handleFrame routes one captured frame according to the current state.
// Returns true when the session reached STOPPED.
func (r *Recorder) handleFrame(frame audio.Frame) bool {
	r.metrics.FramesCaptured.Inc()
	r.totalFrames++

	switch r.State() {
	case StateRecording:
		r.mu.Lock()
		r.open.Append(frame)
		r.mu.Unlock()

		result := r.detector.Observe(frame)
		r.logger.Debug("Frame",
			slog.Int("amplitude", result.Amplitude),
			slog.Bool("silent", result.Silent),
		)

		if !r.config.Interactive &&
			r.detector.SilenceElapsed(r.config.FrameDuration(), r.config.SilenceWindow) {
			r.logger.Info("Silence window elapsed, stopping",
				slog.Int("silent_frames", r.detector.SilentRun()))
			return r.stop()
		}

	case StateReady, StatePaused:
		// Keep the device drained so its buffer cannot overflow, but the
		// frames are dead air and are not stored anywhere.
		r.metrics.FramesDiscarded.Inc()

	case StateStopped:
		// Late frame from the capture goroutine racing teardown; drop it.
		return false
	}

	if r.totalFrames >= r.maxFrames {
		r.logger.Info("Max duration reached, stopping",
			slog.Int("frames", r.totalFrames))
		return r.stop()
	}
	return false
}

// handleEvent applies one control event. Returns true when the session
// reached STOPPED.
func (r *Recorder) handleEvent(ev Event) bool {
	switch ev {
	case EventToggle:
		switch r.State() {
		case StateReady:
			r.openSegment()
			r.setState(StateRecording)
		case StateRecording:
			r.closeAndDispatch()
			r.setState(StatePaused)
		case StatePaused:
			r.openSegment()
			r.detector.Reset()
			r.setState(StateRecording)
		}
	case EventStop:
		return r.stop()
	}
	return false
}

// stop closes and dispatches the open segment if one exists and moves to
// STOPPED. A stop from PAUSED or READY has no open segment and emits no
// empty trailing segment.
func (r *Recorder) stop() bool {
	if r.State() == StateRecording {
		r.closeAndDispatch()
	}
	r.setState(StateStopped)
	return true
}

func (r *Recorder) openSegment() {
	r.mu.Lock()
	r.open = audio.NewSegmentBuffer(r.config.SampleRate * 2)
	r.mu.Unlock()
	r.metrics.SegmentsOpened.Inc()
}

func (r *Recorder) closeAndDispatch() {
	r.mu.Lock()
	buf := r.open
	r.open = nil
	r.mu.Unlock()

	if buf == nil {
		return
	}

	samples := buf.Close()
	seg := r.session.addSegment(buf.OpenedAt(), samples, buf.FrameCount())

	r.metrics.SegmentsClosed.Inc()
	r.metrics.SegmentDuration.Observe(buf.Duration().Seconds())
	r.logger.Info("Segment closed",
		slog.Int("segment", seg.Seq),
		slog.Int("frames", seg.Frames),
		slog.Duration("duration", buf.Duration()),
	)

	r.dispatcher.Enqueue(seg)
}

func (r *Recorder) setState(next State) {
	r.mu.Lock()
	prev := r.state
	r.state = next
	r.mu.Unlock()

	if prev != next {
		r.logger.Info("State transition",
			slog.String("from", prev.String()),
			slog.String("to", next.String()),
		)
	}
}

package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/janwychowaniak/letstalk/internal/audio"
	"github.com/janwychowaniak/letstalk/internal/metrics"
)

// fakeSource delivers frames handed to it by the test, one ReadFrame per
// Feed, and fails with ErrDeviceClosed once closed.
type fakeSource struct {
	reads     chan frameMsg
	quit      chan struct{}
	closeOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		reads: make(chan frameMsg),
		quit:  make(chan struct{}),
	}
}

func (s *fakeSource) ReadFrame() (audio.Frame, error) {
	select {
	case msg := <-s.reads:
		return msg.frame, msg.err
	case <-s.quit:
		return nil, audio.ErrDeviceClosed
	}
}

func (s *fakeSource) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	return nil
}

// feed blocks until the capture loop accepts the frame or the source dies.
func (s *fakeSource) feed(frame audio.Frame) {
	select {
	case s.reads <- frameMsg{frame: frame}:
	case <-s.quit:
	}
}

func (s *fakeSource) feedErr(err error) {
	select {
	case s.reads <- frameMsg{err: err}:
	case <-s.quit:
	}
}

// feedSilenceForever keeps delivering silent frames until the source dies.
func (s *fakeSource) feedSilenceForever(frameSize int) {
	go func() {
		for {
			select {
			case s.reads <- frameMsg{frame: make(audio.Frame, frameSize)}:
			case <-s.quit:
				return
			}
		}
	}()
}

// fakeBackend answers each call with "t<call#>" unless the call number has
// a scripted error or delay.
type fakeBackend struct {
	mu    sync.Mutex
	calls int
	errOn map[int]error
	delay map[int]time.Duration
}

func (b *fakeBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	b.mu.Lock()
	call := b.calls
	b.calls++
	errOn := b.errOn[call]
	delay := b.delay[call]
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if errOn != nil {
		return "", errOn
	}
	return fmt.Sprintf("t%d", call), nil
}

func (b *fakeBackend) Name() string { return "fake" }

const testFrameSize = 160 // 10ms at 16 kHz

func testConfig(interactive bool) Config {
	return Config{
		FrameSize:          testFrameSize,
		SampleRate:         16000,
		AmplitudeThreshold: 800,
		SilenceWindow:      50 * time.Millisecond, // 5 frame periods
		MaxDuration:        time.Hour,
		Interactive:        interactive,
		Language:           "en",
		QueueDepth:         8,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeTestFrame() audio.Frame {
	f := make(audio.Frame, testFrameSize)
	f[0] = 5000
	return f
}

func silentTestFrame() audio.Frame {
	return make(audio.Frame, testFrameSize)
}

func newTestRecorder(t *testing.T, cfg Config, source audio.Source, backend *fakeBackend) (*Recorder, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	r, err := New(cfg, source, backend, " ", testLogger(), m)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	return r, m
}

func waitState(t *testing.T, r *Recorder, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, still %v", want, r.State())
}

func waitCaptured(t *testing.T, m *metrics.Metrics, n float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(m.FramesCaptured) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %v captured frames, have %v",
		n, testutil.ToFloat64(m.FramesCaptured))
}

func runAsync(r *Recorder, events <-chan Event) (<-chan *Result, <-chan error) {
	resCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := r.Run(context.Background(), events)
		resCh <- res
		errCh <- err
	}()
	return resCh, errCh
}

func mustResult(t *testing.T, resCh <-chan *Result) *Result {
	t.Helper()
	select {
	case res := <-resCh:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session to finish")
		return nil
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero frame size", func(c *Config) { c.FrameSize = 0 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"threshold too low", func(c *Config) { c.AmplitudeThreshold = 0 }},
		{"threshold too high", func(c *Config) { c.AmplitudeThreshold = 40000 }},
		{"zero silence window", func(c *Config) { c.SilenceWindow = 0 }},
		{"zero max duration", func(c *Config) { c.MaxDuration = 0 }},
		{"zero queue depth", func(c *Config) { c.QueueDepth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(false)
			tt.mutate(&cfg)
			m := metrics.New(prometheus.NewRegistry())
			if _, err := New(cfg, newFakeSource(), &fakeBackend{}, " ", testLogger(), m); err == nil {
				t.Error("expected configuration error, got nil")
			}
		})
	}
}

func TestAutomaticSilenceStop(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{}
	r, _ := newTestRecorder(t, testConfig(false), source, backend)

	resCh, errCh := runAsync(r, nil)

	// Leading speech, then unbroken silence. The 50ms window at 10ms
	// frames crosses on the 6th consecutive silent frame.
	for i := 0; i < 3; i++ {
		source.feed(activeTestFrame())
	}
	source.feedSilenceForever(testFrameSize)

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if got := res.Segments[0].Frames; got != 3+6 {
		t.Errorf("expected exactly 9 frames (3 speech + 6 silence), got %d", got)
	}
	if res.Transcript != "t0" {
		t.Errorf("unexpected transcript: %q", res.Transcript)
	}
	if r.State() != StateStopped {
		t.Errorf("expected terminal state, got %v", r.State())
	}
}

func TestAutomaticNoStopWithoutSpeech(t *testing.T) {
	cfg := testConfig(false)
	cfg.MaxDuration = 20 * cfg.FrameDuration() // cap the test at 20 frames

	source := newFakeSource()
	backend := &fakeBackend{}
	r, _ := newTestRecorder(t, cfg, source, backend)

	resCh, _ := runAsync(r, nil)
	source.feedSilenceForever(testFrameSize)

	res := mustResult(t, resCh)

	// Silence before any speech never triggers the silence stop; only the
	// max-duration cap ends the session.
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if got := res.Segments[0].Frames; got != 20 {
		t.Errorf("expected the full 20 frames, got %d", got)
	}
}

func TestMaxDurationStop(t *testing.T) {
	cfg := testConfig(false)
	cfg.MaxDuration = 5 * cfg.FrameDuration()

	source := newFakeSource()
	backend := &fakeBackend{}
	r, _ := newTestRecorder(t, cfg, source, backend)

	resCh, errCh := runAsync(r, nil)

	go func() {
		for {
			select {
			case source.reads <- frameMsg{frame: activeTestFrame()}:
			case <-source.quit:
				return
			}
		}
	}()

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if got := res.Segments[0].Frames; got != 5 {
		t.Errorf("expected exactly 5 frames at the cap, got %d", got)
	}
}

func TestInteractivePauseResumeFrameAccounting(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{}
	r, m := newTestRecorder(t, testConfig(true), source, backend)

	events := make(chan Event, 4)
	resCh, errCh := runAsync(r, events)

	events <- EventToggle // start
	waitState(t, r, StateRecording)

	source.feed(activeTestFrame())
	source.feed(activeTestFrame())
	waitCaptured(t, m, 2)

	events <- EventToggle // pause
	waitState(t, r, StatePaused)

	// Drained while paused, never stored.
	source.feed(activeTestFrame())
	source.feed(activeTestFrame())
	source.feed(activeTestFrame())
	waitCaptured(t, m, 5)

	events <- EventToggle // resume
	waitState(t, r, StateRecording)

	source.feed(activeTestFrame())
	source.feed(activeTestFrame())
	waitCaptured(t, m, 7)

	events <- EventStop

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}

	// Gapless, strictly increasing sequence numbers from 0.
	for i, seg := range res.Segments {
		if seg.Seq != i {
			t.Errorf("segment %d has sequence %d", i, seg.Seq)
		}
	}

	// Sum of stored frames equals frames pulled while recording.
	total := res.Segments[0].Frames + res.Segments[1].Frames
	if total != 4 {
		t.Errorf("expected 4 stored frames, got %d", total)
	}
	if got := testutil.ToFloat64(m.FramesDiscarded); got != 3 {
		t.Errorf("expected 3 discarded frames, got %v", got)
	}

	if res.Transcript != "t0 t1" {
		t.Errorf("unexpected transcript: %q", res.Transcript)
	}
}

func TestStopWhilePausedEmitsNoTrailingSegment(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{}
	r, m := newTestRecorder(t, testConfig(true), source, backend)

	events := make(chan Event, 4)
	resCh, errCh := runAsync(r, events)

	events <- EventToggle
	waitState(t, r, StateRecording)
	source.feed(activeTestFrame())
	waitCaptured(t, m, 1)

	events <- EventToggle
	waitState(t, r, StatePaused)

	events <- EventStop

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Segments) != 1 {
		t.Errorf("stop while paused must not add a trailing segment, got %d segments", len(res.Segments))
	}
}

func TestStopWhileRecordingClosesFinalSegment(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{}
	r, m := newTestRecorder(t, testConfig(true), source, backend)

	events := make(chan Event, 4)
	resCh, errCh := runAsync(r, events)

	events <- EventToggle
	waitState(t, r, StateRecording)
	source.feed(activeTestFrame())
	source.feed(activeTestFrame())
	waitCaptured(t, m, 2)

	events <- EventStop

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Segments) != 1 {
		t.Fatalf("expected exactly one final segment, got %d", len(res.Segments))
	}
	if res.Segments[0].Frames != 2 {
		t.Errorf("expected 2 frames in the final segment, got %d", res.Segments[0].Frames)
	}
}

func TestBackendFailureDoesNotAbortSession(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{errOn: map[int]error{0: errors.New("rate limited")}}
	r, m := newTestRecorder(t, testConfig(true), source, backend)

	events := make(chan Event, 8)
	resCh, errCh := runAsync(r, events)

	captured := 0
	for i := 0; i < 3; i++ {
		events <- EventToggle // start / resume
		waitState(t, r, StateRecording)
		source.feed(activeTestFrame())
		captured++
		waitCaptured(t, m, float64(captured))
		events <- EventToggle // pause
		waitState(t, r, StatePaused)
	}
	events <- EventStop

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("backend failure must not abort the session: %v", err)
	}

	if len(res.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(res.Segments))
	}

	want := FailedPlaceholder + " t1 t2"
	if res.Transcript != want {
		t.Errorf("expected %q, got %q", want, res.Transcript)
	}

	if len(res.FailedSegments) != 1 || res.FailedSegments[0] != 0 {
		t.Errorf("expected failed segment list [0], got %v", res.FailedSegments)
	}
	if res.Segments[0].State != SegmentFailed || res.Segments[0].Err == nil {
		t.Error("failure must be attached to segment 0")
	}
	if res.Segments[1].State != SegmentTranscribed {
		t.Error("segment 1 must still be transcribed")
	}
}

func TestSlowDispatchDoesNotReorderTranscript(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{delay: map[int]time.Duration{0: 150 * time.Millisecond}}
	r, m := newTestRecorder(t, testConfig(true), source, backend)

	events := make(chan Event, 8)
	resCh, errCh := runAsync(r, events)

	captured := 0
	for i := 0; i < 2; i++ {
		events <- EventToggle
		waitState(t, r, StateRecording)
		source.feed(activeTestFrame())
		captured++
		waitCaptured(t, m, float64(captured))
		events <- EventToggle
		waitState(t, r, StatePaused)
	}
	events <- EventStop

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Transcript != "t0 t1" {
		t.Errorf("transcript order must follow sequence numbers, got %q", res.Transcript)
	}
}

func TestDeviceErrorFlushesOpenSegment(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{}
	r, m := newTestRecorder(t, testConfig(false), source, backend)

	resCh, errCh := runAsync(r, nil)

	source.feed(activeTestFrame())
	source.feed(activeTestFrame())
	waitCaptured(t, m, 2)
	source.feedErr(errors.New("mic unplugged"))

	res := mustResult(t, resCh)
	err := <-errCh
	if err == nil {
		t.Fatal("expected a device error")
	}
	if !errors.Is(err, ErrDevice) {
		t.Errorf("expected ErrDevice, got %v", err)
	}

	// Best-effort flush: the open segment is closed, dispatched and its
	// transcription awaited before Run returns.
	if len(res.Segments) != 1 {
		t.Fatalf("expected the open segment to be flushed, got %d segments", len(res.Segments))
	}
	if res.Segments[0].Frames != 2 {
		t.Errorf("expected 2 frames, got %d", res.Segments[0].Frames)
	}
	if res.Transcript != "t0" {
		t.Errorf("partial result must carry the transcript, got %q", res.Transcript)
	}
}

func TestContextCancelActsAsStop(t *testing.T) {
	source := newFakeSource()
	backend := &fakeBackend{}
	m := metrics.New(prometheus.NewRegistry())
	r, err := New(testConfig(false), source, backend, " ", testLogger(), m)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	resCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := r.Run(ctx, nil)
		resCh <- res
		errCh <- err
	}()

	source.feed(activeTestFrame())
	waitCaptured(t, m, 1)
	cancel()

	res := mustResult(t, resCh)
	if err := <-errCh; err != nil {
		t.Fatalf("cancel is a stop, not an error: %v", err)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected the open segment to be dispatched on cancel, got %d", len(res.Segments))
	}
	if r.State() != StateStopped {
		t.Errorf("expected terminal state, got %v", r.State())
	}
}

func TestStateStrings(t *testing.T) {
	pairs := map[State]string{
		StateReady:     "ready",
		StateRecording: "recording",
		StatePaused:    "paused",
		StateStopped:   "stopped",
		State(99):      "unknown",
	}
	for state, want := range pairs {
		if state.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", state, state.String(), want)
		}
	}
}

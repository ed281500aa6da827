package recorder

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FailedPlaceholder stands in for a segment whose transcription failed when
// the session transcript is joined.
const FailedPlaceholder = "[transcription failed]"

// SegmentState is the lifecycle of one segment.
type SegmentState int

const (
	SegmentOpen SegmentState = iota
	SegmentClosed
	SegmentTranscribed
	SegmentFailed
)

// Segment is one continuous recorded span between a start/resume event and
// the following pause/stop event. Once closed it is immutable audio owned by
// the dispatcher until an outcome is attached.
type Segment struct {
	Seq       int
	CreatedAt time.Time
	Samples   []int16 // sealed at close; never mutated afterwards
	Frames    int

	// Outcome, written by the dispatcher under the session lock.
	State SegmentState
	Text  string
	Err   error
}

// Session is one full recording-to-transcript lifecycle: the ordered
// segments plus the running outcome bookkeeping. Segment order is insertion
// order, which is recording order because dispatch is sequential.
type Session struct {
	ID        string
	StartedAt time.Time

	mu       sync.Mutex
	segments []*Segment
	fatalErr error
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// addSegment appends a freshly closed segment. Sequence numbers are assigned
// here, so they are gapless and strictly increasing by construction.
func (s *Session) addSegment(createdAt time.Time, samples []int16, frames int) *Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg := &Segment{
		Seq:       len(s.segments),
		CreatedAt: createdAt,
		Samples:   samples,
		Frames:    frames,
		State:     SegmentClosed,
	}
	s.segments = append(s.segments, seg)
	return seg
}

// setOutcome attaches the transcription result to a segment.
func (s *Session) setOutcome(seg *Segment, text string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		seg.State = SegmentFailed
		seg.Err = err
		return
	}
	seg.State = SegmentTranscribed
	seg.Text = text
}

// setFatal records a device failure that aborted the session.
func (s *Session) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatalErr = err
}

// FatalErr returns the device failure that aborted the session, if any.
func (s *Session) FatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// Segments returns the segments in sequence order.
func (s *Session) Segments() []*Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

// SegmentCount returns the number of closed segments.
func (s *Session) SegmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.segments)
}

// TotalFrames returns the frame count summed over all closed segments.
func (s *Session) TotalFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, seg := range s.segments {
		total += seg.Frames
	}
	return total
}

// Transcript joins each segment's text in sequence-number order with the
// separator. Failed segments contribute a placeholder rather than aborting
// the join.
func (s *Session) Transcript(separator string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, len(s.segments))
	for i, seg := range s.segments {
		if seg.State == SegmentFailed {
			parts[i] = FailedPlaceholder
		} else {
			parts[i] = seg.Text
		}
	}
	return strings.Join(parts, separator)
}

// FailedSegments returns the sequence numbers of segments whose
// transcription failed, letting the caller retry those specifically.
func (s *Session) FailedSegments() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed []int
	for _, seg := range s.segments {
		if seg.State == SegmentFailed {
			failed = append(failed, seg.Seq)
		}
	}
	return failed
}

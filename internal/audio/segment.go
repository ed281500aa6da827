package audio

import "time"

// SegmentBuffer accumulates frames for the currently open segment. It is an
// append-only sequence with a single mutation boundary: Close. Before Close,
// only the recorder goroutine appends; after Close the samples are read-only
// and safe to hand to the dispatcher without further synchronization.
type SegmentBuffer struct {
	samples []int16
	frames  int
	opened  time.Time
	closed  bool
}

// NewSegmentBuffer creates an empty buffer. The hint pre-allocates capacity
// in samples; 2 seconds of audio is a reasonable opening bid for speech.
func NewSegmentBuffer(capacityHint int) *SegmentBuffer {
	if capacityHint <= 0 {
		capacityHint = SampleRate * 2
	}
	return &SegmentBuffer{
		samples: make([]int16, 0, capacityHint),
		opened:  time.Now(),
	}
}

// Append adds one frame to the open buffer. Appending after Close is a
// programming error and is ignored rather than corrupting a handed-off
// segment.
func (b *SegmentBuffer) Append(frame Frame) {
	if b.closed {
		return
	}
	b.samples = append(b.samples, frame...)
	b.frames++
}

// Close seals the buffer and returns the accumulated samples. The returned
// slice must not be modified by any caller.
func (b *SegmentBuffer) Close() []int16 {
	b.closed = true
	return b.samples
}

// FrameCount returns the number of frames appended so far.
func (b *SegmentBuffer) FrameCount() int {
	return b.frames
}

// SampleCount returns the number of samples appended so far.
func (b *SegmentBuffer) SampleCount() int {
	return len(b.samples)
}

// OpenedAt returns when the buffer was created.
func (b *SegmentBuffer) OpenedAt() time.Time {
	return b.opened
}

// Duration returns the play time of the buffered audio.
func (b *SegmentBuffer) Duration() time.Duration {
	return time.Duration(len(b.samples)) * time.Second / SampleRate
}

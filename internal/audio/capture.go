package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceClosed is returned by ReadFrame after Close has been called.
var ErrDeviceClosed = errors.New("audio device closed")

// Source produces a sequence of fixed-size PCM frames from some device.
// ReadFrame blocks until a full frame is available or the device fails;
// a device failure is fatal to the session.
type Source interface {
	ReadFrame() (Frame, error)
	Close() error
}

// readGate coordinates the blocking reader goroutine with Close. The stream
// handle may only be released after any in-flight read has returned, and no
// new read may start once closing began; the gate carries exactly that
// handshake so the stream calls themselves stay outside the lock.
type readGate struct {
	mu      sync.Mutex
	cond    *sync.Cond
	reading bool
	closed  bool
}

func newReadGate() *readGate {
	g := &readGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// beginRead marks a read in flight. Returns false when the gate is closed.
func (g *readGate) beginRead() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.reading = true
	return true
}

// endRead marks the read finished and reports whether the gate was closed
// while it ran.
func (g *readGate) endRead() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reading = false
	g.cond.Broadcast()
	return g.closed
}

// close marks the gate closed. It reports whether this call was the one
// that closed it, and whether a read was in flight at that moment; the
// caller is expected to unblock that read.
func (g *readGate) close() (first, reading bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false, false
	}
	g.closed = true
	return true, g.reading
}

// waitReader blocks until no read is in flight.
func (g *readGate) waitReader() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.reading {
		g.cond.Wait()
	}
}

// Capture is a PortAudio-backed Source reading from the default input
// device. It holds an exclusive OS audio handle for its lifetime; callers
// must Close it on every exit path. ReadFrame and Close may be called from
// different goroutines.
type Capture struct {
	stream    *portaudio.Stream
	in        []int16
	frameSize int
	gate      *readGate
}

// OpenCapture initializes PortAudio and opens the default input device at
// the fixed capture format with the given frame size in samples.
func OpenCapture(frameSize int) (*Capture, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), frameSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	return &Capture{
		stream:    stream,
		in:        in,
		frameSize: frameSize,
		gate:      newReadGate(),
	}, nil
}

// ReadFrame blocks until the device delivers one full frame and returns a
// copy owned by the caller. Input overflow is tolerated: the device keeps
// running and the next frame is read, matching the capture behavior the
// pipeline was tuned against. After Close it returns ErrDeviceClosed.
func (c *Capture) ReadFrame() (Frame, error) {
	if !c.gate.beginRead() {
		return nil, ErrDeviceClosed
	}

	err := c.stream.Read()

	if c.gate.endRead() {
		// Close ran while the read was blocked; the stream is already
		// aborted and whatever Read returned is meaningless.
		return nil, ErrDeviceClosed
	}

	if err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			// Samples were dropped by the device buffer but the stream
			// is still healthy; deliver what we got.
		} else {
			return nil, fmt.Errorf("input stream read failed: %w", err)
		}
	}

	frame := make(Frame, len(c.in))
	copy(frame, c.in)
	return frame, nil
}

// Close stops the stream and releases the device handle. Safe to call from
// another goroutine while ReadFrame is blocked, and safe to call twice: a
// blocked read is aborted first and the handle is released only after the
// reader has returned.
func (c *Capture) Close() error {
	first, reading := c.gate.close()
	if !first {
		return nil
	}

	var abortErr error
	if reading {
		// Unblocks the read in flight and leaves the stream stopped.
		abortErr = c.stream.Abort()
	}
	c.gate.waitReader()

	var stopErr error
	if !reading {
		stopErr = c.stream.Stop()
	}
	closeErr := c.stream.Close()
	termErr := portaudio.Terminate()

	if abortErr != nil {
		return fmt.Errorf("failed to abort input stream: %w", abortErr)
	}
	if stopErr != nil {
		return fmt.Errorf("failed to stop input stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close input stream: %w", closeErr)
	}
	if termErr != nil {
		return fmt.Errorf("failed to terminate portaudio: %w", termErr)
	}
	return nil
}

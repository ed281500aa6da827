package vad

import (
	"fmt"
	"time"

	"github.com/janwychowaniak/letstalk/internal/audio"
)

// Detector decides speech vs. silence from frame amplitude. Scoring is a
// pure function of the frame; the only state is the count of consecutive
// silent frames, which resets on any active frame.
type Detector struct {
	threshold    int // peak amplitude below which a frame is silent
	silentFrames int // consecutive silent frames seen
	sawSpeech    bool

	// Statistics
	totalFrames  uint64
	activeFrames uint64
}

// Result describes the classification of a single frame.
type Result struct {
	Amplitude int  // peak absolute sample value
	Silent    bool // amplitude below threshold
}

// Stats represents detector statistics for logging.
type Stats struct {
	TotalFrames    uint64  `json:"total_frames"`
	ActiveFrames   uint64  `json:"active_frames"`
	ActivePercent  float64 `json:"active_percent"`
	SilentRun      int     `json:"silent_run"`
	SpeechObserved bool    `json:"speech_observed"`
	Threshold      int     `json:"threshold"`
}

// NewDetector creates a detector with the given amplitude threshold on the
// ±32768 PCM-16 scale.
func NewDetector(threshold int) (*Detector, error) {
	if threshold < 1 || threshold > 32767 {
		return nil, fmt.Errorf("threshold must be between 1 and 32767, got %d", threshold)
	}
	return &Detector{threshold: threshold}, nil
}

// Score returns the peak absolute amplitude of the frame.
func (d *Detector) Score(frame audio.Frame) int {
	return frame.Peak()
}

// IsSilent reports whether an amplitude is below the detector threshold.
func (d *Detector) IsSilent(amplitude int) bool {
	return amplitude < d.threshold
}

// Observe classifies one frame and advances the silent-run counter.
func (d *Detector) Observe(frame audio.Frame) Result {
	amplitude := d.Score(frame)
	silent := d.IsSilent(amplitude)

	d.totalFrames++
	if silent {
		d.silentFrames++
	} else {
		d.silentFrames = 0
		d.sawSpeech = true
		d.activeFrames++
	}

	return Result{Amplitude: amplitude, Silent: silent}
}

// SilenceElapsed reports whether the talker has stopped: speech was observed
// at some point and the consecutive-silence run now exceeds the window.
// Frame-count timing is exact here because the frame rate is fixed.
func (d *Detector) SilenceElapsed(frameDuration, window time.Duration) bool {
	if !d.sawSpeech || frameDuration <= 0 {
		return false
	}
	return time.Duration(d.silentFrames)*frameDuration > window
}

// SilentRun returns the current count of consecutive silent frames.
func (d *Detector) SilentRun() int {
	return d.silentFrames
}

// SpeechObserved reports whether any active frame has been seen.
func (d *Detector) SpeechObserved() bool {
	return d.sawSpeech
}

// Reset clears the counter and speech flag for a new take.
func (d *Detector) Reset() {
	d.silentFrames = 0
	d.sawSpeech = false
	d.totalFrames = 0
	d.activeFrames = 0
}

// GetStats returns current detector statistics.
func (d *Detector) GetStats() Stats {
	activePercent := float64(0)
	if d.totalFrames > 0 {
		activePercent = float64(d.activeFrames) / float64(d.totalFrames) * 100
	}

	return Stats{
		TotalFrames:    d.totalFrames,
		ActiveFrames:   d.activeFrames,
		ActivePercent:  activePercent,
		SilentRun:      d.silentFrames,
		SpeechObserved: d.sawSpeech,
		Threshold:      d.threshold,
	}
}

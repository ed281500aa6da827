package audio

import "time"

// Format constants shared by every component in the pipeline. The capture
// format is fixed; only the frame size is configurable.
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

// Frame is one fixed-size chunk of mono PCM-16 samples, the atomic unit
// exchanged between the capture loop and the recorder. A Frame is never
// mutated after it leaves the capture loop.
type Frame []int16

// Duration returns the play time of the frame at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	return time.Duration(len(f)) * time.Second / time.Duration(sampleRate)
}

// Peak returns the largest absolute sample value in the frame.
func (f Frame) Peak() int {
	peak := 0
	for _, s := range f {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// SamplesToBytes converts PCM-16 samples to little-endian bytes, the layout
// used both by the WAV container and the transcription backends.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToSamples converts little-endian PCM-16 bytes back to samples.
// The byte length must be even.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

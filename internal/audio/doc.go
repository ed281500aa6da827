// Package audio handles microphone capture, segment buffering, and WAV
// serialization. It produces fixed-size mono 16 kHz s16le PCM frames and
// accumulates them into immutable segment buffers for transcription.
package audio

// Package recorder implements the recording state machine: it consumes
// fixed-size PCM frames from an audio source and control events from either
// a keypress listener or its own silence detection, partitions the stream
// into segments, and hands each closed segment to a transcription backend
// in sequence order while capture keeps running.
package recorder

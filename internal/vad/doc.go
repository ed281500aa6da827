// Package vad provides amplitude-based voice activity detection. It scores
// frames by peak sample value against a configurable threshold and tracks
// the run of consecutive silent frames that ends a recording.
package vad

// Package output delivers the final transcript to its consumers: stdout
// and the system clipboard.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
)

// Sink writes a finished transcript somewhere.
type Sink interface {
	Write(text string) error
}

// StdoutSink prints the transcript to a writer.
type StdoutSink struct {
	W io.Writer
}

// Write prints the transcript followed by a newline.
func (s StdoutSink) Write(text string) error {
	_, err := fmt.Fprintln(s.W, text)
	return err
}

// ClipboardSink copies the trimmed transcript to the system clipboard.
type ClipboardSink struct{}

// Write copies text to the clipboard.
func (ClipboardSink) Write(text string) error {
	if err := clipboard.WriteAll(strings.TrimSpace(text)); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// Deliver writes the transcript to every sink. Sink failures are logged and
// do not stop delivery to the remaining sinks; a headless machine without a
// clipboard should still print the transcript.
func Deliver(logger *slog.Logger, text string, sinks ...Sink) {
	for _, sink := range sinks {
		if err := sink.Write(text); err != nil {
			logger.Warn("Transcript delivery failed",
				slog.String("sink", fmt.Sprintf("%T", sink)),
				slog.String("error", err.Error()),
			)
		}
	}
}

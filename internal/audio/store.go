package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const timestampLayout = "20060102-150405"

// Store persists recorded audio as WAV files with deterministic,
// timestamp-derived names. The store only ever writes and removes files it
// named itself; the decision to remove belongs to the surrounding CLI.
type Store struct {
	dir string
}

// NewStore creates a store writing into dir. An empty dir means the system
// temp directory.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{dir: dir}
}

// Dir returns the directory files are written into.
func (s *Store) Dir() string {
	return s.dir
}

// SessionPath returns the file name for a whole-session recording, e.g.
// listen-20240131-154502.wav.
func (s *Store) SessionPath(start time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("listen-%s.wav", start.Format(timestampLayout)))
}

// SegmentPath returns the file name for one segment of a session, e.g.
// listen-20240131-154502-seg003.wav.
func (s *Store) SegmentPath(start time.Time, seq int) string {
	return filepath.Join(s.dir, fmt.Sprintf("listen-%s-seg%03d.wav", start.Format(timestampLayout), seq))
}

// WriteWAV encodes the samples and writes them to path.
func (s *Store) WriteWAV(path string, samples []int16, sampleRate int) error {
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// ReadWAV reads and decodes a WAV file, returning samples and sample rate.
func (s *Store) ReadWAV(path string) ([]int16, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return samples, rate, nil
}

// Remove deletes a previously written file. Used by the CLI when no backup
// was requested; missing files are not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

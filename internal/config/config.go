package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete letstalk configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Speech        SpeechConfig        `yaml:"speech"`
	Output        OutputConfig        `yaml:"output"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains capture format parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"` // 16000 Hz
	Channels   int    `yaml:"channels"`    // 1 (mono)
	BitDepth   int    `yaml:"bit_depth"`   // 16
	FrameSize  int    `yaml:"frame_size"`  // samples per frame (1024 ≈ 64ms)
	OutputDir  string `yaml:"output_dir"`  // where WAV files are written; empty = temp dir
}

// VADConfig contains silence detection configuration
type VADConfig struct {
	AmplitudeThreshold int     `yaml:"amplitude_threshold"` // peak amplitude below which a frame is silent
	SilenceDuration    float64 `yaml:"silence_duration"`    // seconds of consecutive silence that ends a take
}

// RecorderConfig contains session-level recording parameters
type RecorderConfig struct {
	MaxDuration   float64 `yaml:"max_duration"`   // seconds; hard cap per session
	DispatchQueue int     `yaml:"dispatch_queue"` // closed segments waiting for transcription
}

// TranscriptionConfig contains speech-to-text backend configuration
type TranscriptionConfig struct {
	Service  string `yaml:"service"`  // "groq" or "openai"
	Model    string `yaml:"model"`    // override; empty = service default
	Language string `yaml:"language"` // ISO 639-1 code, e.g. "en"
	Timeout  int    `yaml:"timeout"`  // seconds per request
}

// SpeechConfig contains text-to-speech configuration
type SpeechConfig struct {
	Model    string  `yaml:"model"`     // e.g. "tts-1"
	Voice    string  `yaml:"voice"`     // e.g. "alloy"
	Speed    float64 `yaml:"speed"`     // 0.25 - 4.0
	MaxChars int     `yaml:"max_chars"` // per-request character limit
}

// OutputConfig contains transcript delivery configuration
type OutputConfig struct {
	Separator string `yaml:"separator"` // joins segment texts
	Clipboard bool   `yaml:"clipboard"` // copy final transcript to clipboard
	Stdout    bool   `yaml:"stdout"`    // print final transcript
}

// MetricsConfig contains the optional Prometheus debug listener configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration: mono 16 kHz s16le,
// 1024-sample frames, 800-unit silence threshold, 2 s silence window,
// 60 s session cap.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			BitDepth:   16,
			FrameSize:  1024,
		},
		VAD: VADConfig{
			AmplitudeThreshold: 800,
			SilenceDuration:    2.0,
		},
		Recorder: RecorderConfig{
			MaxDuration:   60.0,
			DispatchQueue: 32,
		},
		Transcription: TranscriptionConfig{
			Service:  "groq",
			Language: "en",
			Timeout:  30,
		},
		Speech: SpeechConfig{
			Model:    "tts-1",
			Voice:    "alloy",
			Speed:    1.0,
			MaxChars: 4096,
		},
		Output: OutputConfig{
			Separator: " ",
			Clipboard: true,
			Stdout:    true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9877",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file. A missing file is not an
// error: the built-in defaults are returned so the tool works with zero
// setup, like the original constant-driven version.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.FrameSize < 64 || a.FrameSize > 16384 {
		return fmt.Errorf("frame_size must be between 64 and 16384 samples, got %d", a.FrameSize)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.AmplitudeThreshold < 1 || v.AmplitudeThreshold > 32767 {
		return fmt.Errorf("amplitude_threshold must be between 1 and 32767, got %d", v.AmplitudeThreshold)
	}

	if v.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %f", v.SilenceDuration)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.MaxDuration <= 0 {
		return fmt.Errorf("max_duration must be positive, got %f", r.MaxDuration)
	}

	if r.DispatchQueue < 1 {
		return fmt.Errorf("dispatch_queue must be at least 1, got %d", r.DispatchQueue)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validServices := map[string]bool{"groq": true, "openai": true}
	if !validServices[t.Service] {
		return fmt.Errorf("service must be 'groq' or 'openai', got '%s'", t.Service)
	}

	if t.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates speech configuration
func (s *SpeechConfig) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if s.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}

	if s.Speed < 0.25 || s.Speed > 4.0 {
		return fmt.Errorf("speed must be between 0.25 and 4.0, got %f", s.Speed)
	}

	if s.MaxChars < 1 {
		return fmt.Errorf("max_chars must be positive, got %d", s.MaxChars)
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetFrameDuration returns the duration of one audio frame
func (a *AudioConfig) GetFrameDuration() time.Duration {
	return time.Duration(a.FrameSize) * time.Second / time.Duration(a.SampleRate)
}

// GetSilenceDuration returns the silence window as a time.Duration
func (v *VADConfig) GetSilenceDuration() time.Duration {
	return time.Duration(v.SilenceDuration * float64(time.Second))
}

// GetMaxDuration returns the session cap as a time.Duration
func (r *RecorderConfig) GetMaxDuration() time.Duration {
	return time.Duration(r.MaxDuration * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// Package speech converts text to audible speech using the OpenAI
// text-to-speech API, chunking long texts at sentence boundaries and
// issuing one sequential API call per chunk.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// APIKeyEnvTTS is the environment variable holding the TTS API key.
const APIKeyEnvTTS = "OPENAI_API_KEY_TTS"

// Config contains text-to-speech parameters.
type Config struct {
	APIKey   string
	Model    string  // e.g. "tts-1"
	Voice    string  // e.g. "alloy"
	Speed    float64 // 0.25 - 4.0
	MaxChars int     // per-request character limit
}

// Validate checks the speech configuration.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty (set %s)", APIKeyEnvTTS)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Voice == "" {
		return fmt.Errorf("voice cannot be empty")
	}
	if c.Speed < 0.25 || c.Speed > 4.0 {
		return fmt.Errorf("speed must be between 0.25 and 4.0, got %f", c.Speed)
	}
	if c.MaxChars < 1 {
		return fmt.Errorf("max_chars must be positive, got %d", c.MaxChars)
	}
	return nil
}

// Speaker synthesizes speech chunk by chunk.
type Speaker struct {
	config Config
	client *openai.Client
	logger *slog.Logger
}

// NewSpeaker creates a speaker for the configured voice and model.
func NewSpeaker(config Config, logger *slog.Logger) (*Speaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid speech config: %w", err)
	}

	return &Speaker{
		config: config,
		client: openai.NewClient(config.APIKey),
		logger: logger,
	}, nil
}

// Synthesize converts text to MP3 audio. Long texts are chunked at sentence
// boundaries and synthesized with one API call per chunk, in order; the MP3
// streams are concatenated.
func (s *Speaker) Synthesize(ctx context.Context, text string) ([]byte, error) {
	chunks := ChunkText(text, s.config.MaxChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("nothing to synthesize")
	}

	var audio bytes.Buffer
	for i, chunk := range chunks {
		start := time.Now()

		resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(s.config.Model),
			Input:          chunk,
			Voice:          openai.SpeechVoice(s.config.Voice),
			Speed:          s.config.Speed,
			ResponseFormat: openai.SpeechResponseFormatMp3,
		})
		if err != nil {
			return nil, fmt.Errorf("speech request %d/%d failed: %w", i+1, len(chunks), err)
		}

		n, err := io.Copy(&audio, resp)
		resp.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read speech response %d/%d: %w", i+1, len(chunks), err)
		}

		s.logger.Debug("Speech chunk synthesized",
			slog.Int("chunk", i+1),
			slog.Int("chunks", len(chunks)),
			slog.Int("chars", len(chunk)),
			slog.Int64("bytes", n),
			slog.Duration("took", time.Since(start)),
		)
	}

	return audio.Bytes(), nil
}

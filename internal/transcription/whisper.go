package transcription

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/janwychowaniak/letstalk/internal/audio"
)

const (
	groqBaseURL      = "https://api.groq.com/openai/v1"
	groqDefaultModel = "whisper-large-v3"

	openaiDefaultModel = openai.Whisper1
)

// WhisperClient is a Backend speaking the OpenAI audio transcription API,
// which both supported services expose. Groq differs only in base URL and
// default model.
type WhisperClient struct {
	config Config
	client *openai.Client
}

// NewWhisperClient creates a backend client for the configured service.
func NewWhisperClient(config Config) (*WhisperClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	if config.Model == "" {
		if config.Service == ServiceGroq {
			config.Model = groqDefaultModel
		} else {
			config.Model = openaiDefaultModel
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	switch {
	case config.BaseURL != "":
		clientConfig.BaseURL = config.BaseURL
	case config.Service == ServiceGroq:
		clientConfig.BaseURL = groqBaseURL
	}

	return &WhisperClient{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name identifies the backend for logging.
func (w *WhisperClient) Name() string {
	return w.config.Service
}

// Model returns the model requests are sent with.
func (w *WhisperClient) Model() string {
	return w.config.Model
}

// Transcribe wraps the PCM audio in a WAV container and sends it to the
// transcription endpoint. Any failure is reported as a BackendError; the
// caller decides what to do with the affected segment.
func (w *WhisperClient) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("%w: empty audio", ErrBackend)
	}

	if len(pcm)%2 != 0 {
		return "", fmt.Errorf("%w: PCM-16 data length must be even, got %d", ErrBackend, len(pcm))
	}

	wav, err := audio.EncodeWAV(audio.BytesToSamples(pcm), sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	reqCtx := ctx
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	resp, err := w.client.CreateTranscription(reqCtx, openai.AudioRequest{
		Model:    w.config.Model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(wav),
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}

	return resp.Text, nil
}

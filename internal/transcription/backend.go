package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackend marks a failed transcription call. Backend failures are
// recoverable: they are recorded per segment and never abort a session.
var ErrBackend = errors.New("transcription backend error")

// Backend is the speech-to-text capability consumed by the dispatcher:
// raw little-endian PCM-16 in, text out. Implementations are
// interchangeable; the dispatcher does not know which service it talks to.
type Backend interface {
	// Transcribe converts one utterance of PCM audio to text.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error)
	// Name identifies the backend for logging.
	Name() string
}

// Config contains backend selection and per-request parameters.
type Config struct {
	Service string        // "groq" or "openai"
	Model   string        // override; empty = service default
	APIKey  string        // bearer token for the selected service
	BaseURL string        // override; empty = service default endpoint
	Timeout time.Duration // per-request timeout
}

// Validate checks the backend configuration.
func (c *Config) Validate() error {
	if c.Service != ServiceGroq && c.Service != ServiceOpenAI {
		return fmt.Errorf("service must be '%s' or '%s', got '%s'", ServiceGroq, ServiceOpenAI, c.Service)
	}

	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty (set %s)", APIKeyEnv(c.Service))
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}

	return nil
}

// Supported services and their environment variables for API keys, matching
// the names the original tool used.
const (
	ServiceGroq   = "groq"
	ServiceOpenAI = "openai"

	groqKeyEnv   = "GROQ_API_KEY_STT"
	openaiKeyEnv = "OPENAI_API_KEY_STT"
)

// APIKeyEnv returns the environment variable holding the API key for a
// service.
func APIKeyEnv(service string) string {
	if service == ServiceGroq {
		return groqKeyEnv
	}
	return openaiKeyEnv
}

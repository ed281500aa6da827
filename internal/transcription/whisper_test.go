package transcription

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/janwychowaniak/letstalk/internal/audio"
)

func testPCM(t *testing.T) []byte {
	t.Helper()
	samples := make([]int16, audio.SampleRate/10)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	return audio.SamplesToBytes(samples)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		expectErr bool
	}{
		{
			name:      "valid groq",
			config:    Config{Service: ServiceGroq, APIKey: "k", Timeout: time.Second},
			expectErr: false,
		},
		{
			name:      "valid openai",
			config:    Config{Service: ServiceOpenAI, APIKey: "k", Timeout: time.Second},
			expectErr: false,
		},
		{
			name:      "unknown service",
			config:    Config{Service: "azure", APIKey: "k", Timeout: time.Second},
			expectErr: true,
		},
		{
			name:      "missing api key",
			config:    Config{Service: ServiceGroq, Timeout: time.Second},
			expectErr: true,
		},
		{
			name:      "zero timeout",
			config:    Config{Service: ServiceGroq, APIKey: "k"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultModels(t *testing.T) {
	groq, err := NewWhisperClient(Config{Service: ServiceGroq, APIKey: "k", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if groq.Model() != "whisper-large-v3" {
		t.Errorf("expected groq default whisper-large-v3, got %s", groq.Model())
	}
	if groq.Name() != "groq" {
		t.Errorf("expected name groq, got %s", groq.Name())
	}

	oa, err := NewWhisperClient(Config{Service: ServiceOpenAI, APIKey: "k", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if oa.Model() != "whisper-1" {
		t.Errorf("expected openai default whisper-1, got %s", oa.Model())
	}
}

func TestAPIKeyEnv(t *testing.T) {
	if APIKeyEnv(ServiceGroq) != "GROQ_API_KEY_STT" {
		t.Error("wrong groq key env")
	}
	if APIKeyEnv(ServiceOpenAI) != "OPENAI_API_KEY_STT" {
		t.Error("wrong openai key env")
	}
}

func TestTranscribeAgainstFakeEndpoint(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello from the fake"}`))
	}))
	defer server.Close()

	client, err := NewWhisperClient(Config{
		Service: ServiceGroq,
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	text, err := client.Transcribe(context.Background(), testPCM(t), audio.SampleRate, "en")
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hello from the fake" {
		t.Errorf("unexpected text: %q", text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
}

func TestTranscribeServerErrorIsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewWhisperClient(Config{
		Service: ServiceOpenAI,
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Transcribe(context.Background(), testPCM(t), audio.SampleRate, "en")
	if err == nil {
		t.Fatal("expected error from 500 response")
	}
	if !errors.Is(err, ErrBackend) {
		t.Errorf("expected ErrBackend, got %v", err)
	}
}

func TestTranscribeRejectsBadInput(t *testing.T) {
	client, err := NewWhisperClient(Config{Service: ServiceGroq, APIKey: "k", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.Transcribe(context.Background(), nil, audio.SampleRate, "en"); !errors.Is(err, ErrBackend) {
		t.Error("empty audio must be a backend error")
	}
	if _, err := client.Transcribe(context.Background(), []byte{1, 2, 3}, audio.SampleRate, "en"); !errors.Is(err, ErrBackend) {
		t.Error("odd byte count must be a backend error")
	}
}

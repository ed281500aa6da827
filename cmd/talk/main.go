package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/janwychowaniak/letstalk/internal/config"
	"github.com/janwychowaniak/letstalk/internal/speech"
)

const (
	defaultConfigPath = "configs/config.yaml"
	toolName          = "talk"
	toolVersion       = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	voice := flag.String("v", "", "Voice to speak with (overrides config)")
	model := flag.String("m", "", "Speech model (overrides config)")
	speed := flag.Float64("speed", 0, "Speech speed, 0.25 to 4.0 (overrides config)")
	outFile := flag.String("o", "", "Write MP3 audio to this file instead of playing it")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Apply flag overrides
	if *voice != "" {
		cfg.Speech.Voice = *voice
	}
	if *model != "" {
		cfg.Speech.Model = *model
	}
	if *speed > 0 {
		cfg.Speech.Speed = *speed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	text, err := readText(flag.Args())
	if err != nil {
		logger.Error("Failed to read input text", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "Usage: talk [flags] <text>  (or pipe text on stdin)")
		os.Exit(2)
	}

	logger.Info("Starting",
		slog.String("tool", toolName),
		slog.String("version", toolVersion),
		slog.String("voice", cfg.Speech.Voice),
		slog.String("model", cfg.Speech.Model),
		slog.Int("chars", len(text)),
	)

	speaker, err := speech.NewSpeaker(speech.Config{
		APIKey:   os.Getenv(speech.APIKeyEnvTTS),
		Model:    cfg.Speech.Model,
		Voice:    cfg.Speech.Voice,
		Speed:    cfg.Speech.Speed,
		MaxChars: cfg.Speech.MaxChars,
	}, logger)
	if err != nil {
		logger.Error("Failed to create speaker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, cancelling", slog.String("signal", sig.String()))
		cancel()
	}()

	audio, err := speaker.Synthesize(ctx, text)
	if err != nil {
		logger.Error("Speech synthesis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, audio, 0644); err != nil {
			logger.Error("Failed to write audio file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Audio written", slog.String("path", *outFile), slog.Int("bytes", len(audio)))
		return
	}

	if err := speech.Play(audio); err != nil {
		logger.Error("Playback failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// readText takes the text to speak from the positional arguments, or from
// stdin when none are given so the tool composes with pipes.
func readText(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var out *os.File
	switch cfg.Output {
	case "stderr", "":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			out = os.Stderr
		} else {
			out = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

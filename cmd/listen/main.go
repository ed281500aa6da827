package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/janwychowaniak/letstalk/internal/audio"
	"github.com/janwychowaniak/letstalk/internal/config"
	"github.com/janwychowaniak/letstalk/internal/metrics"
	"github.com/janwychowaniak/letstalk/internal/output"
	"github.com/janwychowaniak/letstalk/internal/recorder"
	"github.com/janwychowaniak/letstalk/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	toolName          = "listen"
	toolVersion       = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	language := flag.String("l", "", "Transcription language (overrides config)")
	service := flag.String("s", "", "Transcription service: groq or openai (overrides config)")
	duration := flag.Float64("d", 0, "Max recording duration in seconds (overrides config)")
	backup := flag.Bool("b", false, "Keep the recorded WAV file after transcription")
	input := flag.String("i", "", "Transcribe an existing WAV file instead of recording")
	interactive := flag.Bool("interactive", false, "Drive recording with keys: space toggles, q stops")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Apply flag overrides
	if *language != "" {
		cfg.Transcription.Language = *language
	}
	if *service != "" {
		cfg.Transcription.Service = *service
	}
	if *duration > 0 {
		cfg.Recorder.MaxDuration = *duration
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Starting",
		slog.String("tool", toolName),
		slog.String("version", toolVersion),
		slog.String("service", cfg.Transcription.Service),
		slog.String("language", cfg.Transcription.Language),
	)

	// Initialize Prometheus metrics and the optional debug listener
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Address, registry, logger)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("Error stopping metrics listener", slog.String("error", err.Error()))
			}
		}()
	}

	// Create the transcription backend
	apiKey := os.Getenv(transcription.APIKeyEnv(cfg.Transcription.Service))
	backend, err := transcription.NewWhisperClient(transcription.Config{
		Service: cfg.Transcription.Service,
		Model:   cfg.Transcription.Model,
		APIKey:  apiKey,
		Timeout: cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Cancellable context wired to SIGINT/SIGTERM; a signal acts as a stop
	// event, not an abort, so the session still finalizes cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received signal, stopping", slog.String("signal", sig.String()))
		cancel()
	}()

	var transcript string
	exitCode := 0

	if *input != "" {
		if *interactive || *backup || *duration > 0 {
			logger.Warn("Recording flags are ignored in file mode")
		}
		transcript, err = transcribeFile(ctx, cfg, backend, *input, logger)
		if err != nil {
			logger.Error("File transcription failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		transcript, err = recordAndTranscribe(ctx, cfg, backend, appMetrics, *interactive, *backup, logger)
		if err != nil {
			// A device failure still delivered the partial transcript
			// below; only the exit code reports it.
			logger.Error("Session aborted", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	if transcript != "" {
		var sinks []output.Sink
		if cfg.Output.Stdout {
			sinks = append(sinks, output.StdoutSink{W: os.Stdout})
		}
		if cfg.Output.Clipboard {
			sinks = append(sinks, output.ClipboardSink{})
		}
		output.Deliver(logger, transcript, sinks...)
	}

	os.Exit(exitCode)
}

// transcribeFile decodes an existing WAV file and sends it through the
// backend as a single utterance.
func transcribeFile(ctx context.Context, cfg *config.Config, backend transcription.Backend,
	path string, logger *slog.Logger) (string, error) {

	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		logger.Warn("Input file does not look like a WAV file", slog.String("path", path))
	}

	store := audio.NewStore(cfg.Audio.OutputDir)
	samples, rate, err := store.ReadWAV(path)
	if err != nil {
		return "", err
	}

	logger.Info("Transcribing file",
		slog.String("path", path),
		slog.Int("sample_rate", rate),
		slog.Duration("duration", audio.Frame(samples).Duration(rate)),
	)

	return backend.Transcribe(ctx, audio.SamplesToBytes(samples), rate, cfg.Transcription.Language)
}

// recordAndTranscribe runs one full recording session against the default
// input device and returns the joined transcript. In interactive mode the
// keyboard drives the session; otherwise silence or the duration cap ends it.
func recordAndTranscribe(ctx context.Context, cfg *config.Config, backend transcription.Backend,
	appMetrics *metrics.Metrics, interactive, backup bool, logger *slog.Logger) (string, error) {

	source, err := audio.OpenCapture(cfg.Audio.FrameSize)
	if err != nil {
		return "", fmt.Errorf("failed to open audio device: %w", err)
	}
	// The recorder closes the source during teardown on every path.

	rec, err := recorder.New(recorder.Config{
		FrameSize:          cfg.Audio.FrameSize,
		SampleRate:         cfg.Audio.SampleRate,
		AmplitudeThreshold: cfg.VAD.AmplitudeThreshold,
		SilenceWindow:      cfg.VAD.GetSilenceDuration(),
		MaxDuration:        cfg.Recorder.GetMaxDuration(),
		Interactive:        interactive,
		Language:           cfg.Transcription.Language,
		QueueDepth:         cfg.Recorder.DispatchQueue,
	}, source, backend, cfg.Output.Separator, logger, appMetrics)
	if err != nil {
		source.Close()
		return "", err
	}

	var events <-chan recorder.Event
	if interactive {
		listener, err := recorder.NewKeyListener(os.Stdin, recorder.DefaultKeyMap(), logger)
		if err != nil {
			source.Close()
			return "", fmt.Errorf("interactive mode needs a terminal on stdin: %w", err)
		}
		defer listener.Restore()
		listener.Start()
		events = listener.Events()

		fmt.Fprintln(os.Stderr, "Press space to start/pause, q to stop.")
	} else {
		fmt.Fprintln(os.Stderr, "Recording... stops after silence.")
	}

	result, runErr := rec.Run(ctx, events)

	if len(result.Segments) > 0 {
		persistRecording(cfg, result, backup, logger)
	}

	for _, seq := range result.FailedSegments {
		logger.Warn("Segment left untranscribed", slog.Int("segment", seq))
	}

	return result.Transcript, runErr
}

// persistRecording writes the session audio as one WAV file. Without the
// backup flag the file is removed again once transcription is done, matching
// the scratch-file behavior of the original workflow.
func persistRecording(cfg *config.Config, result *recorder.Result, backup bool, logger *slog.Logger) {
	store := audio.NewStore(cfg.Audio.OutputDir)

	var samples []int16
	for _, seg := range result.Segments {
		samples = append(samples, seg.Samples...)
	}
	if len(samples) == 0 {
		return
	}

	path := store.SessionPath(result.StartedAt)
	if err := store.WriteWAV(path, samples, cfg.Audio.SampleRate); err != nil {
		logger.Warn("Failed to write recording", slog.String("error", err.Error()))
		return
	}

	if !backup {
		if err := store.Remove(path); err != nil {
			logger.Warn("Failed to remove recording", slog.String("error", err.Error()))
		}
		return
	}

	logger.Info("Recording kept", slog.String("path", path))

	// With more than one segment also keep the individual takes; useful for
	// retrying a single failed segment by hand.
	if len(result.Segments) > 1 {
		for _, seg := range result.Segments {
			segPath := store.SegmentPath(result.StartedAt, seg.Seq)
			if err := store.WriteWAV(segPath, seg.Samples, cfg.Audio.SampleRate); err != nil {
				logger.Warn("Failed to write segment", slog.Int("segment", seg.Seq), slog.String("error", err.Error()))
			}
		}
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination. The transcript goes to stdout, so logs
	// default to stderr to keep piping clean.
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

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

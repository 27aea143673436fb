package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"voxflow/config"
	"voxflow/internal/application"
	"voxflow/internal/domain"
	"voxflow/internal/infra"
	"voxflow/internal/infra/audio"
	"voxflow/internal/infra/desktop"
	"voxflow/internal/infra/foreground"
	"voxflow/internal/infra/history"
	"voxflow/internal/infra/httpapi"
	"voxflow/internal/infra/metrics"
	"voxflow/internal/infra/ollama"
	"voxflow/internal/infra/providers"
	"voxflow/internal/infra/pushover"
	"voxflow/internal/infra/recordings"
	"voxflow/internal/infra/requestlog"
	"voxflow/internal/infra/vad"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	inputFile := flag.String("input-file", "", "replay this WAV file instead of recording from the microphone")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *inputFile, logger); err != nil {
		logger.Error("voxflow error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, inputFile string, logger *slog.Logger) error {
	m := metrics.New()

	warnUnknownProviders(cfg, logger)

	hist, err := history.Open(cfg.HistoryPath(), cfg.History.MaxEntries)
	if err != nil {
		return err
	}
	logs := requestlog.NewStore(cfg.RequestLog)
	recs := recordings.NewStore(cfg.RecordingsDir(), cfg.Recordings.MaxFiles, logger)

	var sinks application.MultiSink
	sinks = append(sinks, desktop.NewLogSink(logger))
	if cfg.Notify.Enabled {
		n := desktop.NewNotifier(logger)
		defer n.Close()
		sinks = append(sinks, n)
	}
	if cfg.Notify.Pushover.Enabled {
		sinks = append(sinks, pushover.NewClient(cfg.Notify.Pushover.Token, cfg.Notify.Pushover.UserKey, logger))
	}
	if cfg.Clipboard.Enabled {
		c := desktop.NewClipboardSink(logger)
		defer c.Close()
		sinks = append(sinks, c)
	}

	var device audio.Device = audio.NewMicrophone(logger)
	if inputFile != "" {
		logger.Info("using file input", "path", inputFile)
		device = audio.NewFileDevice(inputFile)
	}
	capture := audio.NewCapture(device, vadSinks(cfg.VAD, sinks, m, logger), logger)

	engine := application.NewEngine(cfg, application.Deps{
		Recorder:   capture,
		Factory:    providers.NewFactory(logger, m.ObserveExchange),
		Foreground: foreground.New(),
		Logs:       logs,
		Recordings: recs,
		History:    hist,
		Events:     sinks,
		Metrics:    m,
		Logger:     logger,
	})

	if cfg.LLM.Enabled && cfg.LLM.Provider == ollama.Name {
		pingOllama(ctx, cfg.LLM, logger)
	}

	handler := httpapi.NewServer(cfg.HTTP, logger, httpapi.Dependencies{
		Engine:         engine,
		Logs:           logs,
		Recordings:     recs,
		Metrics:        m,
		MetricsHandler: m.Handler(),
	})
	listener := httpapi.NewListener(cfg.HTTP.Addr, handler, logger)
	if err := listener.Start(); err != nil {
		return err
	}

	logger.Info("starting voxflow",
		"addr", listener.Addr(),
		"stt_provider", cfg.STT.Provider,
		"llm_provider", cfg.LLM.Provider,
		"llm_enabled", cfg.LLM.Enabled,
		"vad", cfg.VAD.Enabled,
		"vad_backend", vad.Backend,
		"data_dir", cfg.DataDir,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if engine.State().IsActive() {
		_ = engine.Cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return listener.Stop(shutdownCtx)
}

// vadSinks feeds each capture session into a VAD worker whose transitions
// are logged, counted and forwarded as events.
func vadSinks(cfg config.VADConfig, events application.EventSink, m *metrics.Metrics, logger *slog.Logger) audio.SinkFactory {
	if !cfg.Enabled {
		return nil
	}
	return func(format domain.AudioFormat) audio.SampleSink {
		det, err := vad.New(cfg, format.SampleRate, format.Channels)
		if err != nil {
			logger.Warn("voice activity detection disabled for this session", "error", err)
			return nil
		}
		return vad.NewWorker(det, func(ev vad.Event) {
			logger.Info("voice activity", "kind", ev.Kind.String(), "frame", ev.Frame, "pre_roll_samples", len(ev.PreRoll))
			m.ObserveVAD(ev.Kind.String())
			switch ev.Kind {
			case vad.SpeechStart:
				events.Emit(domain.Event{Kind: domain.EventSpeechStart})
			case vad.SpeechEnd:
				events.Emit(domain.Event{Kind: domain.EventSpeechEnd})
			}
		})
	}
}

func pingOllama(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) {
	var opts []infra.Option
	if cfg.BaseURL != "" {
		opts = append(opts, infra.WithBaseURL(cfg.BaseURL))
	}
	client := ollama.NewClient(cfg.Model, opts...)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		logger.Warn("ollama is not reachable, rewrites will fall back to the raw transcript", "error", err)
		return
	}
	models, err := client.ListModels(pingCtx)
	if err != nil {
		logger.Warn("listing ollama models", "error", err)
		return
	}
	if !ollama.HasModel(models, client.Model()) {
		logger.Warn("ollama model not pulled", "model", client.Model(), "available", len(models))
	}
}

func warnUnknownProviders(cfg *config.Config, logger *slog.Logger) {
	if !slices.Contains(providers.STTProviders(), cfg.STT.Provider) {
		logger.Warn("unknown stt provider", "provider", cfg.STT.Provider, "supported", providers.STTProviders())
	}
	if cfg.LLM.Enabled && !slices.Contains(providers.LLMProviders(), cfg.LLM.Provider) {
		logger.Warn("unknown llm provider", "provider", cfg.LLM.Provider, "supported", providers.LLMProviders())
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// Command earshot is the main entry point for the Earshot voice capture
// server: it wires a frame source into the processing pipeline and serves
// health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/earshot/earshot/internal/config"
	"github.com/earshot/earshot/internal/dsp"
	"github.com/earshot/earshot/internal/health"
	"github.com/earshot/earshot/internal/observe"
	"github.com/earshot/earshot/internal/pipeline"
	"github.com/earshot/earshot/pkg/source"
	"github.com/earshot/earshot/pkg/source/discord"
	"github.com/earshot/earshot/pkg/wakeword"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const (
	defaultListenAddr = ":8080"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "earshot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "earshot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config hot-reload can adjust it.
	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("earshot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
		"source", cfg.Source.Kind,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	met := observe.DefaultMetrics()

	// ── Factory registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p, err := buildPipeline(cfg, met, logger)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer p.Close()

	if err := registerKeywords(p, cfg, reg); err != nil {
		slog.Error("failed to register wake keywords", "err", err)
		return 1
	}

	p.OnDetection(func(d pipeline.Detection) {
		slog.Info("wake word detected",
			"id", d.ID,
			"keyword", d.Keyword,
			"confidence", d.Confidence,
			"timestamp", d.Timestamp,
		)
	})

	// ── Frame source ──────────────────────────────────────────────────────────
	rawSrc, err := reg.CreateSource(cfg.Source, cfg.Audio)
	if err != nil {
		slog.Error("failed to create frame source", "kind", cfg.Source.Kind, "err", err)
		return 1
	}
	src, err := source.NewSupervisor(source.SupervisorConfig{Source: rawSrc, Logger: logger})
	if err != nil {
		slog.Error("failed to supervise frame source", "err", err)
		return 1
	}
	defer src.Close()

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(p, levelVar, old, new)
	})
	if err != nil {
		slog.Error("failed to watch config file", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP server ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.PipelineChecker(p),
		health.FrameFlowChecker(p),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: observe.Middleware(met)(mux),
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("pipeline: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := src.Start(gctx, p.ProcessFrame)
		if err != nil && !errors.Is(err, context.Canceled) {
			// A dead source forces the ERROR state but keeps the server up so
			// the operator can inspect /readyz and issue a reset.
			p.ReportSourceError(err)
			slog.Error("frame source stopped", "err", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Factory wiring ────────────────────────────────────────────────────────────

// registerBuiltins wires the wake-word engines and frame sources that ship
// with Earshot into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterEngine("energy", func(config.WakeConfig) (wakeword.Engine, error) {
		return &wakeword.EnergyEngine{}, nil
	})

	reg.RegisterSource("synthetic", func(cfg config.SourceConfig, audio config.AudioConfig) (source.Source, error) {
		return source.NewSynthetic(source.SyntheticConfig{
			SampleRate:     audio.SampleRate,
			Channels:       audio.Channels,
			FrameDuration:  audio.FrameDuration(),
			ToneHz:         cfg.Synthetic.ToneHz,
			Amplitude:      cfg.Synthetic.Amplitude,
			NoiseAmplitude: cfg.Synthetic.NoiseAmplitude,
		})
	})

	reg.RegisterSource("discord", func(cfg config.SourceConfig, audio config.AudioConfig) (source.Source, error) {
		return discord.New(discord.Config{
			BotToken:   cfg.Discord.BotToken,
			GuildID:    cfg.Discord.GuildID,
			ChannelID:  cfg.Discord.ChannelID,
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
		})
	})
}

// buildPipeline maps the YAML config onto a pipeline configuration.
func buildPipeline(cfg *config.Config, met *observe.Metrics, logger *slog.Logger) (*pipeline.Pipeline, error) {
	mics := make([]pipeline.MicPosition, len(cfg.Audio.MicPositions))
	for i, m := range cfg.Audio.MicPositions {
		mics[i] = pipeline.MicPosition{X: m.X, Y: m.Y}
	}

	p, err := pipeline.New(pipeline.Config{
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		MicPositions:    mics,
		QueueCapacity:   cfg.Audio.QueueCapacity,
		HistoryDuration: time.Duration(cfg.History.DurationMs) * time.Millisecond,
		WakeTimeout:     time.Duration(cfg.Wake.TimeoutMs) * time.Millisecond,
		MaxRecording:    time.Duration(cfg.Recording.MaxDurationMs) * time.Millisecond,
		ManualRecord:    !cfg.Wake.AutoRecordEnabled(),
		Analyzer: pipeline.AnalyzerConfig{
			ActivationDB:        cfg.VAD.ActivationDB,
			LocalActiveDB:       cfg.VAD.LocalActiveDB,
			DebounceFrames:      cfg.VAD.DebounceFrames,
			NoiseFloorAlpha:     cfg.VAD.NoiseFloorAlpha,
			InitialNoiseFloorDB: cfg.VAD.InitialNoiseFloorDB,
		},
		Gate: pipeline.GateConfig{
			WindowMs:    cfg.Wake.WindowMs,
			StrideMs:    cfg.Wake.StrideMs,
			CooldownMs:  cfg.Wake.CooldownMs,
			MaxKeywords: cfg.Wake.MaxKeywords,
		},
		Features: dsp.Config{
			FrameSize:    cfg.Features.FrameSize,
			FrameStride:  cfg.Features.FrameStride,
			FFTSize:      cfg.Features.FFTSize,
			MelFilters:   cfg.Features.MelFilters,
			Coefficients: cfg.Features.Coefficients,
		},
		Metrics: met,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Beam.SteeringDeg != 0 {
		if err := p.SetBeamDirection(cfg.Beam.SteeringDeg); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

// registerKeywords builds a scorer per configured keyword using the
// configured wake engine and registers it with the pipeline.
func registerKeywords(p *pipeline.Pipeline, cfg *config.Config, reg *config.Registry) error {
	if len(cfg.Wake.Keywords) == 0 {
		return nil
	}

	engine, err := reg.CreateEngine(cfg.Wake)
	if err != nil {
		return fmt.Errorf("create wake engine %q: %w", cfg.Wake.Engine, err)
	}

	scorerCfg := wakeword.Config{
		SampleRate:   cfg.Audio.SampleRate,
		WindowMs:     cfg.Wake.WindowMs,
		MelFilters:   cfg.Features.MelFilters,
		Coefficients: cfg.Features.Coefficients,
	}

	for _, kw := range cfg.Wake.Keywords {
		scorer, err := engine.NewScorer(scorerCfg, kw.Keyword)
		if err != nil {
			return fmt.Errorf("build scorer for %q: %w", kw.Keyword, err)
		}
		if err := p.RegisterWakeWord(wakeword.Model{
			Keyword:   kw.Keyword,
			Threshold: kw.Threshold,
			Scorer:    scorer,
		}); err != nil {
			return fmt.Errorf("register %q: %w", kw.Keyword, err)
		}
		slog.Info("wake keyword registered",
			"keyword", kw.Keyword,
			"threshold", kw.Threshold,
			"engine", cfg.Wake.Engine,
		)
	}
	return nil
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyConfigChange applies the hot-reloadable parts of a config update to
// the running pipeline and logs a restart hint for everything else.
func applyConfigChange(p *pipeline.Pipeline, levelVar *slog.LevelVar, old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.HasChanges() {
		slog.Debug("config file changed but nothing hot-reloadable differs")
		return
	}

	if d.LogLevelChanged {
		levelVar.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level updated", "level", d.NewLogLevel)
	}

	if d.SteeringChanged {
		if err := p.SetBeamDirection(d.NewSteeringDeg); err != nil {
			slog.Warn("rejected steering update", "degrees", d.NewSteeringDeg, "err", err)
		} else {
			slog.Info("beam steering updated", "degrees", d.NewSteeringDeg)
		}
	}

	for _, kd := range d.KeywordChanges {
		switch {
		case kd.Added:
			slog.Warn("keyword added in config; restart required to load it", "keyword", kd.Keyword)
		case kd.Removed:
			slog.Warn("keyword removed from config; restart required to unload it", "keyword", kd.Keyword)
		case kd.ThresholdChanged:
			if err := p.SetWakeThreshold(kd.Keyword, kd.NewThreshold); err != nil {
				slog.Warn("rejected threshold update", "keyword", kd.Keyword, "err", err)
			} else {
				slog.Info("wake threshold updated", "keyword", kd.Keyword, "threshold", kd.NewThreshold)
			}
		}
	}
}

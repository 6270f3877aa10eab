package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be positive", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d must be positive", cfg.Audio.FrameMs))
	}
	if cfg.Audio.QueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("audio.queue_capacity %d must not be negative", cfg.Audio.QueueCapacity))
	}
	if cfg.Audio.Channels > 0 && len(cfg.Audio.MicPositions) != cfg.Audio.Channels {
		errs = append(errs, fmt.Errorf("audio.mic_positions has %d entries for %d channels", len(cfg.Audio.MicPositions), cfg.Audio.Channels))
	}

	// Beam
	if cfg.Beam.SteeringDeg < 0 || cfg.Beam.SteeringDeg > 360 {
		errs = append(errs, fmt.Errorf("beam.steering_deg %.1f is out of range [0, 360]", cfg.Beam.SteeringDeg))
	}

	// VAD
	if cfg.VAD.NoiseFloorAlpha != 0 && (cfg.VAD.NoiseFloorAlpha < 0 || cfg.VAD.NoiseFloorAlpha >= 1) {
		errs = append(errs, fmt.Errorf("vad.noise_floor_alpha %v must be in [0, 1)", cfg.VAD.NoiseFloorAlpha))
	}
	if cfg.VAD.DebounceFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.debounce_frames %d must not be negative", cfg.VAD.DebounceFrames))
	}

	// Wake
	if cfg.Wake.StrideMs > cfg.Wake.WindowMs && cfg.Wake.WindowMs > 0 {
		errs = append(errs, fmt.Errorf("wake.stride_ms %d exceeds wake.window_ms %d", cfg.Wake.StrideMs, cfg.Wake.WindowMs))
	}
	keywordsSeen := make(map[string]int, len(cfg.Wake.Keywords))
	for i, kw := range cfg.Wake.Keywords {
		prefix := fmt.Sprintf("wake.keywords[%d]", i)
		if kw.Keyword == "" {
			errs = append(errs, fmt.Errorf("%s.keyword is required", prefix))
		} else {
			if prev, ok := keywordsSeen[kw.Keyword]; ok {
				errs = append(errs, fmt.Errorf("%s.keyword %q is a duplicate of wake.keywords[%d]", prefix, kw.Keyword, prev))
			}
			keywordsSeen[kw.Keyword] = i
		}
		if kw.Threshold < 0 || kw.Threshold > 1 {
			errs = append(errs, fmt.Errorf("%s.threshold %.2f is out of range [0, 1]", prefix, kw.Threshold))
		}
	}
	if len(cfg.Wake.Keywords) == 0 {
		slog.Warn("no wake keywords configured; the pipeline will never leave LISTENING on its own")
	}

	// Recording / history
	if cfg.Recording.MaxDurationMs < 0 {
		errs = append(errs, fmt.Errorf("recording.max_duration_ms %d must not be negative", cfg.Recording.MaxDurationMs))
	}
	if cfg.History.DurationMs < 0 {
		errs = append(errs, fmt.Errorf("history.duration_ms %d must not be negative", cfg.History.DurationMs))
	}

	// Source
	if cfg.Source.Kind != "" && !cfg.Source.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("source.kind %q is invalid; valid values: synthetic, discord", cfg.Source.Kind))
	}
	if cfg.Source.Kind == SourceDiscord {
		if cfg.Source.Discord.BotToken == "" {
			errs = append(errs, errors.New("source.discord.bot_token is required for the discord source"))
		}
		if cfg.Source.Discord.GuildID == "" || cfg.Source.Discord.ChannelID == "" {
			errs = append(errs, errors.New("source.discord requires both guild_id and channel_id"))
		}
	}
	if cfg.Source.Kind == SourceSynthetic && cfg.Source.Synthetic.Amplitude > 32767 {
		errs = append(errs, fmt.Errorf("source.synthetic.amplitude %d exceeds int16 full scale", cfg.Source.Synthetic.Amplitude))
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured level onto slog's scale. Unset or invalid
// levels fall back to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package config provides the configuration schema, loader, engine registry,
// and file watcher for the Earshot capture pipeline.
package config

import "time"

// LogLevel controls log verbosity for the Earshot server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SourceKind selects the frame source implementation.
type SourceKind string

const (
	// SourceSynthetic generates tone/noise frames internally. Intended for
	// development and tests.
	SourceSynthetic SourceKind = "synthetic"

	// SourceDiscord captures voice from a Discord channel.
	SourceDiscord SourceKind = "discord"
)

// IsValid reports whether k is a recognised source kind.
func (k SourceKind) IsValid() bool {
	return k == SourceSynthetic || k == SourceDiscord
}

// Config is the root configuration structure for Earshot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Beam      BeamConfig      `yaml:"beam"`
	VAD       VADConfig       `yaml:"vad"`
	Features  FeaturesConfig  `yaml:"features"`
	Wake      WakeConfig      `yaml:"wake"`
	Recording RecordingConfig `yaml:"recording"`
	History   HistoryConfig   `yaml:"history"`
	Source    SourceConfig    `yaml:"source"`
}

// ServerConfig holds network and logging settings for the Earshot server.
type ServerConfig struct {
	// ListenAddr is the TCP address the control/metrics server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AudioConfig describes the incoming frame format and queueing.
type AudioConfig struct {
	// SampleRate in Hz (e.g., 16000).
	SampleRate int `yaml:"sample_rate"`

	// Channels is the interleaved channel count delivered by the source.
	Channels int `yaml:"channels"`

	// FrameMs is the source frame duration in milliseconds (e.g., 10).
	FrameMs int `yaml:"frame_ms"`

	// QueueCapacity is the frame queue depth between the source and the
	// processing task. Zero takes the pipeline default.
	QueueCapacity int `yaml:"queue_capacity"`

	// MicPositions gives each channel's microphone position in meters
	// relative to the array origin. Must have exactly Channels entries.
	MicPositions []MicPositionConfig `yaml:"mic_positions"`
}

// MicPositionConfig is one microphone's position in the array plane.
type MicPositionConfig struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// BeamConfig holds the initial beamformer steering. Hot-reloadable.
type BeamConfig struct {
	// SteeringDeg is the initial steering angle in degrees [0, 360].
	SteeringDeg float64 `yaml:"steering_deg"`
}

// VADConfig tunes voice-activity detection. Zero fields take pipeline
// defaults.
type VADConfig struct {
	// ActivationDB above the noise floor required for frame activity.
	ActivationDB float64 `yaml:"activation_db"`

	// LocalActiveDB above the noise floor for a channel to count towards
	// the multi-channel quorum.
	LocalActiveDB float64 `yaml:"local_active_db"`

	// DebounceFrames of consecutive agreement before the active flag flips.
	DebounceFrames int `yaml:"debounce_frames"`

	// NoiseFloorAlpha is the EMA smoothing factor in [0, 1).
	NoiseFloorAlpha float64 `yaml:"noise_floor_alpha"`

	// InitialNoiseFloorDB seeds the noise-floor estimate.
	InitialNoiseFloorDB float64 `yaml:"initial_noise_floor_db"`
}

// FeaturesConfig tunes MFCC extraction for wake-word scoring. Zero fields
// take conventional defaults derived from the sample rate.
type FeaturesConfig struct {
	FrameSize    int `yaml:"frame_size"`
	FrameStride  int `yaml:"frame_stride"`
	FFTSize      int `yaml:"fft_size"`
	MelFilters   int `yaml:"mel_filters"`
	Coefficients int `yaml:"coefficients"`
}

// WakeConfig tunes the wake-word gate and the post-detection behaviour.
type WakeConfig struct {
	// Engine selects the registered scorer engine (e.g., "energy").
	Engine string `yaml:"engine"`

	// WindowMs is the sliding analysis window duration.
	WindowMs int `yaml:"window_ms"`

	// StrideMs is the window advance per scoring pass.
	StrideMs int `yaml:"stride_ms"`

	// CooldownMs suppresses detections after one fires.
	CooldownMs int `yaml:"cooldown_ms"`

	// MaxKeywords bounds the keyword registry.
	MaxKeywords int `yaml:"max_keywords"`

	// AutoRecord, when true (the default), starts recording on the same
	// processing tick as a detection. When false the pipeline waits in
	// WAKE_DETECTED for an external start until TimeoutMs elapses.
	AutoRecord *bool `yaml:"auto_record"`

	// TimeoutMs bounds WAKE_DETECTED when AutoRecord is false.
	TimeoutMs int `yaml:"timeout_ms"`

	// Keywords lists the wake words to register at startup. Thresholds are
	// hot-reloadable only for keywords already present.
	Keywords []KeywordConfig `yaml:"keywords"`
}

// KeywordConfig declares one wake word and its confidence threshold.
type KeywordConfig struct {
	Keyword   string  `yaml:"keyword"`
	Threshold float64 `yaml:"threshold"`
}

// RecordingConfig bounds utterance capture.
type RecordingConfig struct {
	// MaxDurationMs is the recording duration limit.
	MaxDurationMs int `yaml:"max_duration_ms"`
}

// HistoryConfig sizes the rolling raw-audio history.
type HistoryConfig struct {
	// DurationMs of raw multi-channel audio retained for lookback.
	DurationMs int `yaml:"duration_ms"`
}

// SourceConfig selects and configures the frame source.
type SourceConfig struct {
	// Kind selects the source implementation.
	Kind SourceKind `yaml:"kind"`

	// Synthetic configures the tone/noise generator source.
	Synthetic SyntheticConfig `yaml:"synthetic"`

	// Discord configures the Discord voice capture source.
	Discord DiscordConfig `yaml:"discord"`
}

// SyntheticConfig tunes the generated test signal.
type SyntheticConfig struct {
	// ToneHz is the generated sine frequency. Zero produces noise only.
	ToneHz float64 `yaml:"tone_hz"`

	// Amplitude is the peak tone amplitude in full-scale int16 units.
	Amplitude int `yaml:"amplitude"`

	// NoiseAmplitude is the peak of the added uniform noise.
	NoiseAmplitude int `yaml:"noise_amplitude"`
}

// DiscordConfig holds the Discord voice connection parameters.
type DiscordConfig struct {
	// BotToken authenticates the bot account.
	BotToken string `yaml:"bot_token"`

	// GuildID is the server to join.
	GuildID string `yaml:"guild_id"`

	// ChannelID is the voice channel to capture from.
	ChannelID string `yaml:"channel_id"`
}

// AutoRecordEnabled resolves the AutoRecord default (true when unset).
func (w WakeConfig) AutoRecordEnabled() bool {
	return w.AutoRecord == nil || *w.AutoRecord
}

// FrameDuration returns the configured source frame duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMs) * time.Millisecond
}

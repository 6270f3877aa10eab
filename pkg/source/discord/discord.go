// Package discord provides a [source.Source] that captures voice from a
// Discord channel via the bwmarrin/discordgo library, decoding the Opus-based
// voice transport into the pipeline's PCM frame format.
//
// Discord delivers 48 kHz stereo Opus in 20 ms packets. The source decodes
// each packet with a per-speaker (per-SSRC) decoder, mixes all active
// speakers into one stereo stream, and converts to the configured channel
// count and sample rate before delivery.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/earshot/earshot/pkg/audio"
	"github.com/earshot/earshot/pkg/source"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms packet.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// Config holds the Discord connection and output format parameters.
type Config struct {
	// BotToken authenticates the bot account.
	BotToken string

	// GuildID is the server to join.
	GuildID string

	// ChannelID is the voice channel to capture from.
	ChannelID string

	// SampleRate of delivered frames in Hz.
	SampleRate int

	// Channels of delivered frames: 1 (downmixed) or 2.
	Channels int
}

// Source captures voice from one Discord channel. Create with [New], drive
// with Start, release with Close.
type Source struct {
	cfg     Config
	session *discordgo.Session

	closeOnce sync.Once
	closeErr  error
}

var _ source.Source = (*Source)(nil)

// New opens a Discord session for cfg. The voice channel is joined on Start.
func New(cfg Config) (*Source, error) {
	if cfg.BotToken == "" || cfg.GuildID == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord: bot token, guild ID and channel ID are all required")
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("discord: sample rate %d must be positive", cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("discord: %d channels unsupported, want 1 or 2", cfg.Channels)
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildVoiceStates
	return &Source{cfg: cfg, session: session}, nil
}

// Start joins the voice channel and delivers decoded frames until ctx is
// cancelled or the voice connection drops. A dropped connection is returned
// as an error; the caller decides whether to reconnect.
func (s *Source) Start(ctx context.Context, deliver source.DeliverFunc) error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	// mute=true since this source never sends; deaf=false so we receive audio.
	vc, err := s.session.ChannelVoiceJoin(s.cfg.GuildID, s.cfg.ChannelID, true, false)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %q: %w", s.cfg.ChannelID, err)
	}
	defer func() { _ = vc.Disconnect() }()

	return s.recvLoop(ctx, vc, deliver)
}

// recvLoop reads Opus packets, decodes them per SSRC into the mixer, and
// delivers the summed stream on a 20 ms cadence. Timestamps are wall time
// since capture start, so the pipeline clock stays at real-time rate no
// matter how many speakers talk at once.
func (s *Source) recvLoop(ctx context.Context, vc *discordgo.VoiceConnection, deliver source.DeliverFunc) error {
	// Each SSRC gets its own decoder to maintain state across packets.
	decoders := make(map[uint32]*gopus.Decoder)
	mix := newMixer()
	start := time.Now()

	ticker := time.NewTicker(opusFrameSizeMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-vc.OpusRecv:
			if !ok {
				return fmt.Errorf("discord: voice connection closed")
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = gopus.NewDecoder(opusSampleRate, opusChannels)
				if err != nil {
					return fmt.Errorf("discord: create opus decoder: %w", err)
				}
				decoders[pkt.SSRC] = dec
				slog.Info("discord: new speaker", "ssrc", strconv.FormatUint(uint64(pkt.SSRC), 10))
			}

			pcm, err := dec.Decode(pkt.Opus, opusFrameSize, false)
			if err != nil {
				slog.Warn("discord: opus decode error, packet skipped",
					"ssrc", pkt.SSRC, "err", err)
				continue
			}
			mix.push(pkt.SSRC, pcm)

		case <-ticker.C:
			pcm := mix.drain(opusFrameSize * opusChannels)
			if pcm == nil {
				continue
			}
			frame := audio.Frame{
				Samples:    s.convert(pcm),
				SampleRate: s.cfg.SampleRate,
				Channels:   s.cfg.Channels,
				Timestamp:  time.Since(start),
			}
			if err := deliver(frame); err != nil {
				slog.Debug("discord: frame dropped by pipeline", "err", err)
			}
		}
	}
}

// convert adapts one decoded 48 kHz stereo packet to the configured format.
func (s *Source) convert(pcm []int16) []int16 {
	if s.cfg.Channels == 1 {
		mono := audio.StereoToMono(pcm)
		return audio.ResampleMono(mono, opusSampleRate, s.cfg.SampleRate)
	}
	return audio.ResampleInterleaved(pcm, opusChannels, opusSampleRate, s.cfg.SampleRate)
}

// Close shuts down the Discord session. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.session.Close()
	})
	return s.closeErr
}

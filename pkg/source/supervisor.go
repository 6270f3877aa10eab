package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default restart parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Supervisor wraps a [Source] and restarts it with exponential backoff when
// it stops with a fault. Cancellation passes through untouched, so the
// wrapped source still shuts down cleanly.
//
// A run that survives at least the maximum backoff duration is treated as a
// recovery and resets the retry budget; without this, a source that faults
// once a day would eventually exhaust its retries.
type Supervisor struct {
	src        Source
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	log        *slog.Logger
}

// SupervisorConfig configures a [Supervisor].
type SupervisorConfig struct {
	// Source is the frame source to supervise. Required.
	Source Source

	// MaxRetries is the number of consecutive failed restarts before the
	// supervisor gives up and surfaces the fault. Default 10.
	MaxRetries int

	// Backoff is the delay before the first restart. It doubles on each
	// consecutive failure up to MaxBackoff. Default 1s.
	Backoff time.Duration

	// MaxBackoff caps the restart delay. Default 30s.
	MaxBackoff time.Duration

	// Logger receives restart activity. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewSupervisor creates a [Supervisor] around cfg.Source.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Source == nil {
		return nil, errors.New("source: supervisor needs a source to wrap")
	}
	s := &Supervisor{
		src:        cfg.Source,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		log:        cfg.Logger,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.backoff <= 0 {
		s.backoff = defaultBackoff
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = defaultMaxBackoff
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Start runs the wrapped source, restarting it on faults. It blocks until
// ctx is cancelled, the wrapped source stops cleanly, or the retry budget is
// exhausted.
func (s *Supervisor) Start(ctx context.Context, deliver DeliverFunc) error {
	backoff := s.backoff
	attempt := 0

	for {
		started := time.Now()
		err := s.src.Start(ctx, deliver)
		if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return err
		}

		// A long healthy run means the previous outage is over.
		if time.Since(started) >= s.maxBackoff {
			attempt = 0
			backoff = s.backoff
		}

		attempt++
		if attempt > s.maxRetries {
			return fmt.Errorf("source: giving up after %d restarts: %w", s.maxRetries, err)
		}

		s.log.Warn("frame source fault, restarting",
			"attempt", attempt,
			"max_retries", s.maxRetries,
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// Close closes the wrapped source.
func (s *Supervisor) Close() error {
	return s.src.Close()
}

// Package source defines the frame-source boundary of the capture pipeline
// and a synthetic reference implementation.
//
// A [Source] stands in for the hardware/driver layer: it produces
// fixed-duration multi-channel frames at a fixed cadence and pushes them to
// the pipeline through a deliver callback. Platform adapters (e.g.,
// source/discord) implement [Source] over real transports.
//
// This package lives under pkg/ because external code is expected to
// implement [Source].
package source

import (
	"context"

	"github.com/earshot/earshot/pkg/audio"
)

// DeliverFunc accepts one captured frame. Implementations are non-blocking;
// a full downstream queue drops the frame and returns an error the source may
// log but must not treat as fatal.
type DeliverFunc func(audio.Frame) error

// Source produces audio frames at a fixed rate.
//
// Implementations must guarantee that delivered frames match the configured
// sample rate, channel count, and frame duration, and that timestamps are
// monotonic from capture start.
type Source interface {
	// Start captures frames and pushes each one through deliver. It blocks
	// until ctx is cancelled (returning ctx.Err()) or an unrecoverable
	// hardware/transport fault occurs (returning a describing error). The
	// caller treats any non-cancellation error as fatal for the session.
	Start(ctx context.Context, deliver DeliverFunc) error

	// Close releases capture resources. Safe to call more than once.
	Close() error
}

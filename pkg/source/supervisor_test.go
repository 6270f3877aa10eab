package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/earshot/earshot/pkg/audio"
)

// flakySource fails its first failures runs, then blocks until cancelled.
type flakySource struct {
	failures int32
	starts   atomic.Int32
	closed   atomic.Bool
}

func (f *flakySource) Start(ctx context.Context, deliver DeliverFunc) error {
	n := f.starts.Add(1)
	if n <= f.failures {
		return errors.New("device gone")
	}
	if err := deliver(audio.Frame{Samples: make([]int16, 160), Channels: 1, SampleRate: 16000}); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *flakySource) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestSupervisor(t *testing.T, src Source, maxRetries int) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{
		Source:     src,
		MaxRetries: maxRetries,
		Backoff:    time.Millisecond,
		MaxBackoff: 4 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	return s
}

func TestSupervisor_RequiresSource(t *testing.T) {
	if _, err := NewSupervisor(SupervisorConfig{}); err == nil {
		t.Fatal("NewSupervisor with nil source = nil error, want failure")
	}
}

func TestSupervisor_RestartsThroughFaults(t *testing.T) {
	src := &flakySource{failures: 2}
	s := newTestSupervisor(t, src, 5)

	ctx, cancel := context.WithCancel(context.Background())
	delivered := make(chan struct{}, 1)
	done := make(chan error, 1)

	go func() {
		done <- s.Start(ctx, func(audio.Frame) error {
			select {
			case delivered <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("source never recovered and delivered a frame")
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start = %v, want context.Canceled", err)
	}
	if got := src.starts.Load(); got != 3 {
		t.Errorf("start attempts = %d, want 3", got)
	}
}

func TestSupervisor_GivesUpAfterMaxRetries(t *testing.T) {
	src := &flakySource{failures: 100}
	s := newTestSupervisor(t, src, 3)

	err := s.Start(context.Background(), func(audio.Frame) error { return nil })
	if err == nil {
		t.Fatal("Start = nil, want exhaustion error")
	}
	// Initial run plus three restarts.
	if got := src.starts.Load(); got != 4 {
		t.Errorf("start attempts = %d, want 4", got)
	}
}

func TestSupervisor_CloseClosesWrapped(t *testing.T) {
	src := &flakySource{}
	s := newTestSupervisor(t, src, 1)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed.Load() {
		t.Error("wrapped source was not closed")
	}
}

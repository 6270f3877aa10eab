package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/earshot/earshot/pkg/source"
	"github.com/earshot/earshot/pkg/wakeword"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: factory not registered")

// Registry maps names to constructor functions for the pluggable pieces of
// the pipeline: wake-word scorer engines and frame sources. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]func(WakeConfig) (wakeword.Engine, error)
	sources map[string]func(SourceConfig, AudioConfig) (source.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]func(WakeConfig) (wakeword.Engine, error)),
		sources: make(map[string]func(SourceConfig, AudioConfig) (source.Source, error)),
	}
}

// RegisterEngine registers a wake-word engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory func(WakeConfig) (wakeword.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// RegisterSource registers a frame-source factory under name.
func (r *Registry) RegisterSource(name string, factory func(SourceConfig, AudioConfig) (source.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateEngine instantiates the wake-word engine registered under
// cfg.Engine. Returns [ErrNotRegistered] when no factory matches.
func (r *Registry) CreateEngine(cfg WakeConfig) (wakeword.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine/%q", ErrNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}

// CreateSource instantiates the frame source registered under cfg.Kind.
func (r *Registry) CreateSource(cfg SourceConfig, audio AudioConfig) (source.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[string(cfg.Kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source/%q", ErrNotRegistered, cfg.Kind)
	}
	return factory(cfg, audio)
}

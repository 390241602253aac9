package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
)

// Audio backend names accepted by audio.backend.
const (
	BackendMiniaudio = "miniaudio"
	BackendNone      = "none"
)

// Backends lists the valid values of audio.backend.
var Backends = []string{BackendMiniaudio, BackendNone}

// ErrBackendNotRegistered is returned by [Registry.CreateAudio] when no
// factory has been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: audio backend not registered")

// AudioDevices is the capture/playback pair produced by a backend factory.
type AudioDevices struct {
	Capture  audio.Capture
	Playback audio.Playback

	// Close releases backend resources shared by both devices. It runs
	// after the session has detached. May be nil.
	Close func() error
}

// AudioFactory builds the devices for a backend.
type AudioFactory func(AudioConfig) (*AudioDevices, error)

// Registry maps audio backend names to their constructor functions. It is
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	audio map[string]AudioFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{audio: make(map[string]AudioFactory)}
}

// RegisterAudio registers an audio backend factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// AudioBackends returns the registered backend names, sorted.
func (r *Registry) AudioBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.audio))
	for name := range r.audio {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// CreateAudio instantiates the devices using the factory registered under
// cfg.Backend. Returns [ErrBackendNotRegistered] if there is none.
func (r *Registry) CreateAudio(cfg AudioConfig) (*AudioDevices, error) {
	r.mu.RLock()
	factory, ok := r.audio[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

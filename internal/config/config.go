// Package config provides the configuration schema, loader, file watcher and
// audio backend registry for the parley voice client.
package config

import (
	"time"

	"github.com/MrWong99/parley/pkg/motion"
)

// LogLevel controls log verbosity.
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

// Config is the root configuration structure for parley.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Session    SessionConfig    `yaml:"session"`
	Motion     motion.Config    `yaml:"motion"`
	Audio      AudioConfig      `yaml:"audio"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel is one of debug, info, warn, error. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is the address of the status server (/healthz, /readyz,
	// /metrics). Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}

// ConnectionConfig configures the duplex link to the voice backend.
type ConnectionConfig struct {
	// URL is the ws:// or wss:// endpoint. Required.
	URL string `yaml:"url"`

	// Headers are sent with the opening handshake, e.g. Authorization.
	Headers map[string]string `yaml:"headers"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// WriteQueue bounds the number of outbound messages buffered per link.
	WriteQueue int `yaml:"write_queue"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// ReconnectConfig mirrors connection.ReconnectPolicy.
type ReconnectConfig struct {
	MinDelay      time.Duration `yaml:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	JitterRatio   float64       `yaml:"jitter_ratio"`

	// MaxAttempts caps consecutive attempts. Zero means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// HeartbeatConfig configures the keep-alive.
type HeartbeatConfig struct {
	// Interval between pings. Zero disables the heartbeat.
	Interval time.Duration `yaml:"interval"`
}

// SessionConfig configures the voice session orchestrator.
type SessionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// SourceSampleRate is the microphone rate. Zero lets the backend choose.
	SourceSampleRate   int    `yaml:"source_sample_rate"`
	TargetSampleRate   int    `yaml:"target_sample_rate"`
	FrameSize          int    `yaml:"frame_size"`
	PlaybackSampleRate int    `yaml:"playback_sample_rate"`
	AudioFormat        string `yaml:"audio_format"`

	CaptureMuteWindow   time.Duration `yaml:"capture_mute_window"`
	AmplitudeMuteWindow time.Duration `yaml:"amplitude_mute_window"`

	// StopAction is "pause" (default) or "end".
	StopAction string `yaml:"stop_action"`

	// AutoStart starts a voice session every time the connection opens.
	AutoStart bool `yaml:"auto_start"`
}

// AudioConfig selects the audio device backend.
type AudioConfig struct {
	// Backend is a name registered in the [Registry]: "miniaudio" or "none".
	Backend string `yaml:"backend"`
}

package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/parley/pkg/motion"
	"github.com/MrWong99/parley/pkg/session"
)

// Defaults filled in by [ApplyDefaults] and [LoadFromReader].
const (
	DefaultLogLevel      = LogInfo
	DefaultDialTimeout   = 10 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultWriteQueue    = 256
	DefaultAudioFormat   = "pcm16"
	DefaultAudioBackend  = BackendMiniaudio
	DefaultMinDelay      = 500 * time.Millisecond
	DefaultMaxDelay      = 30 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultJitterRatio   = 0.2
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := seeded()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seeded returns the config the decoder starts from. It carries the defaults
// for fields whose zero value is meaningful, so that only an absent key takes
// the default and an explicit zero survives.
func seeded() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Reconnect: ReconnectConfig{JitterRatio: DefaultJitterRatio},
		},
	}
}

// ApplyDefaults fills every unset field of cfg. Zero means unset, except for
// connection.reconnect.jitter_ratio, where zero disables jitter; [LoadFromReader]
// supplies its default when the key is absent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}

	c := &cfg.Connection
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.WriteQueue == 0 {
		c.WriteQueue = DefaultWriteQueue
	}
	if c.Reconnect.MinDelay == 0 {
		c.Reconnect.MinDelay = DefaultMinDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = DefaultMaxDelay
	}
	if c.Reconnect.BackoffFactor == 0 {
		c.Reconnect.BackoffFactor = DefaultBackoffFactor
	}

	s := &cfg.Session
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = session.DefaultHandshakeTimeout
	}
	if s.TargetSampleRate == 0 {
		s.TargetSampleRate = session.DefaultTargetSampleRate
	}
	if s.FrameSize == 0 {
		s.FrameSize = session.DefaultFrameSize
	}
	if s.PlaybackSampleRate == 0 {
		s.PlaybackSampleRate = session.DefaultPlaybackSampleRate
	}
	if s.AudioFormat == "" {
		s.AudioFormat = DefaultAudioFormat
	}
	if s.CaptureMuteWindow == 0 {
		s.CaptureMuteWindow = session.DefaultCaptureMuteWindow
	}
	if s.AmplitudeMuteWindow == 0 {
		s.AmplitudeMuteWindow = session.DefaultAmplitudeMuteWindow
	}
	if s.StopAction == "" {
		s.StopAction = session.StopPause.String()
	}

	// An absent motion section takes every default; a partial one keeps an
	// explicit zero min_amplitude.
	if cfg.Motion == (motion.Config{}) {
		cfg.Motion = motion.DefaultConfig()
	} else {
		def := motion.DefaultConfig()
		if cfg.Motion.MaxAmplitude == 0 {
			cfg.Motion.MaxAmplitude = def.MaxAmplitude
		}
		if cfg.Motion.Scale == 0 {
			cfg.Motion.Scale = def.Scale
		}
	}

	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = DefaultAudioBackend
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Connection
	c := cfg.Connection
	if c.URL == "" {
		errs = append(errs, errors.New("connection.url is required"))
	} else if u, err := url.Parse(c.URL); err != nil {
		errs = append(errs, fmt.Errorf("connection.url: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("connection.url scheme %q is invalid; valid values: ws, wss", u.Scheme))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, errors.New("connection.dial_timeout must not be negative"))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("connection.write_timeout must not be negative"))
	}
	if c.WriteQueue < 0 {
		errs = append(errs, errors.New("connection.write_queue must not be negative"))
	}
	r := c.Reconnect
	if r.MinDelay < 0 || r.MaxDelay < 0 {
		errs = append(errs, errors.New("connection.reconnect delays must not be negative"))
	}
	if r.MaxDelay > 0 && r.MinDelay > r.MaxDelay {
		errs = append(errs, fmt.Errorf("connection.reconnect.min_delay %s exceeds max_delay %s", r.MinDelay, r.MaxDelay))
	}
	if r.BackoffFactor != 0 && r.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("connection.reconnect.backoff_factor %.2f must be >= 1", r.BackoffFactor))
	}
	if r.JitterRatio < 0 || r.JitterRatio > 1 {
		errs = append(errs, fmt.Errorf("connection.reconnect.jitter_ratio %.2f is out of range [0, 1]", r.JitterRatio))
	}
	if r.MaxAttempts < 0 {
		errs = append(errs, errors.New("connection.reconnect.max_attempts must not be negative"))
	}
	if c.Heartbeat.Interval < 0 {
		errs = append(errs, errors.New("connection.heartbeat.interval must not be negative"))
	}

	// Session
	s := cfg.Session
	if s.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("session.handshake_timeout must not be negative"))
	}
	if s.SourceSampleRate < 0 {
		errs = append(errs, errors.New("session.source_sample_rate must not be negative"))
	}
	for name, v := range map[string]int{
		"target_sample_rate":   s.TargetSampleRate,
		"frame_size":           s.FrameSize,
		"playback_sample_rate": s.PlaybackSampleRate,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("session.%s must be > 0", name))
		}
	}
	if s.CaptureMuteWindow < 0 || s.AmplitudeMuteWindow < 0 {
		errs = append(errs, errors.New("session mute windows must not be negative"))
	}
	if _, err := session.ParseStopAction(s.StopAction); err != nil {
		errs = append(errs, fmt.Errorf("session.stop_action: %w", err))
	}

	// Motion
	if err := cfg.Motion.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Audio
	if !slices.Contains(Backends, cfg.Audio.Backend) {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: %v", cfg.Audio.Backend, Backends))
	}

	return errors.Join(errs...)
}

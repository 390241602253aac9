package config

import "github.com/MrWong99/parley/pkg/motion"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MotionChanged bool
	MotionPatch   motion.Patch

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.MotionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	om, nm := old.Motion, new.Motion
	if om.MinAmplitude != nm.MinAmplitude {
		d.MotionPatch.MinAmplitude = &nm.MinAmplitude
	}
	if om.MaxAmplitude != nm.MaxAmplitude {
		d.MotionPatch.MaxAmplitude = &nm.MaxAmplitude
	}
	if om.Scale != nm.Scale {
		d.MotionPatch.Scale = &nm.Scale
	}
	d.MotionChanged = d.MotionPatch.MinAmplitude != nil ||
		d.MotionPatch.MaxAmplitude != nil ||
		d.MotionPatch.Scale != nil

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !connectionEqual(old.Connection, new.Connection) {
		d.RestartRequired = append(d.RestartRequired, "connection")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	return d
}

func connectionEqual(a, b ConnectionConfig) bool {
	if a.URL != b.URL || a.DialTimeout != b.DialTimeout || a.WriteTimeout != b.WriteTimeout ||
		a.WriteQueue != b.WriteQueue || a.Reconnect != b.Reconnect || a.Heartbeat != b.Heartbeat {
		return false
	}
	if len(a.Headers) != len(b.Headers) {
		return false
	}
	for k, v := range a.Headers {
		if bv, ok := b.Headers[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

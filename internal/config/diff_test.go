package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/pkg/motion"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	return mustLoad(t, sampleYAML)
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig(t)
	d := config.Diff(cfg, baseConfig(t))
	if d.Changed() {
		t.Errorf("expected no hot-reloadable change, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want empty", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Server.LogLevel = config.LogWarn

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn {
		t.Errorf("diff = %+v", d)
	}
	if d.MotionChanged {
		t.Error("MotionChanged should be false")
	}
}

func TestDiff_MotionPatch(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Motion.Scale = 4
	new.Motion.MinAmplitude = 0.1

	d := config.Diff(old, new)
	if !d.MotionChanged || !d.Changed() {
		t.Fatalf("diff = %+v", d)
	}
	if d.MotionPatch.MaxAmplitude != nil {
		t.Error("unchanged max_amplitude should not be patched")
	}

	got := d.MotionPatch.Apply(old.Motion)
	want := motion.Config{MinAmplitude: 0.1, MaxAmplitude: 0.8, Scale: 4}
	if got != want {
		t.Errorf("patched = %+v, want %+v", got, want)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Connection.Headers = map[string]string{"Authorization": "Bearer rotated"}
	new.Session.FrameSize = 960
	new.Audio.Backend = config.BackendMiniaudio
	new.Server.ListenAddr = ":9000"

	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("cold fields should not count as hot changes: %+v", d)
	}
	want := []string{"server.listen_addr", "connection", "session", "audio"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
}

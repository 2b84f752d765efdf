package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:     " Warning ",
		EnvLogTimestamp: "false",
		EnvLogNoColor:   "1",
	}
	cfg := DefaultConfig(ProfileRuntime)
	ApplyEnv(&cfg, func(k string) string { return env[k] })

	if cfg.Level != zerolog.WarnLevel {
		t.Errorf("Level = %v, want %v", cfg.Level, zerolog.WarnLevel)
	}
	if cfg.Timestamp {
		t.Error("Timestamp = true, want false")
	}
	if !cfg.NoColor {
		t.Error("NoColor = false, want true")
	}
}

func TestApplyEnv_IgnoresGarbage(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:     "loud",
		EnvLogTimestamp: "sometimes",
	}
	cfg := DefaultConfig(ProfileTest)
	ApplyEnv(&cfg, func(k string) string { return env[k] })

	if cfg.Level != zerolog.DebugLevel {
		t.Errorf("Level = %v, want %v", cfg.Level, zerolog.DebugLevel)
	}
	if cfg.Timestamp {
		t.Error("Timestamp = true, want test profile default false")
	}
}

func TestNewWithConfig_WritesComponentAndHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf}
	logger := NewWithConfig(cfg, "sender")

	logger.Debug().Msg("hidden")
	logger.Info().Str("stage", "bind").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	for _, want := range []string{"visible", "component=sender", "stage=bind"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

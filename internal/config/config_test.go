package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-framegate/pkg/trigger"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framegate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Server.Port != DefaultPort || cfg.Gate.ChangeThreshold != 5 || cfg.Gate.FrameIntervalMs != 20 {
		t.Errorf("Default() = %+v", cfg)
	}
	if diff := cmp.Diff(trigger.DefaultPolicy(), cfg.Gate.Policy); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("missing file should yield defaults (-want +got):\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9000
log:
  level: debug
gate:
  change_threshold: 12.5
  rebuild_on_resize: true
  policy:
    volatile_enabled: false
    disturbed_cooldown: 500ms
analyzer:
  chunk_size: 32
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.Server.Port = 9000
	want.Log.Level = "debug"
	want.Gate.ChangeThreshold = 12.5
	want.Gate.RebuildOnResize = true
	want.Gate.Policy.VolatileEnabled = false
	want.Gate.Policy.DisturbedCooldown = 500 * time.Millisecond
	want.Analyzer.ChunkSize = 32

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "server: [")); err == nil {
		t.Error("Load should fail on malformed YAML")
	}
}

func TestLoad_NonFinitePolicyRejected(t *testing.T) {
	for _, v := range []string{".nan", ".inf"} {
		t.Run(v, func(t *testing.T) {
			cfg, err := Load(writeFile(t, "gate:\n  policy:\n    per_moment_bonus: "+v+"\n"))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			var ce *ConfigError
			if err := cfg.Validate(); !errors.As(err, &ce) || ce.Field != "gate.policy" {
				t.Errorf("Validate() = %v, want ConfigError on gate.policy", err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPort, "9100")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvChangeThreshold, "7.5")
	t.Setenv(EnvVolatileEnabled, "false")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Log.Level != "warn" || cfg.Gate.ChangeThreshold != 7.5 || cfg.Gate.Policy.VolatileEnabled {
		t.Errorf("after ApplyEnv: %+v", cfg)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{EnvPort, "eighty"},
		{EnvChangeThreshold, "lots"},
		{EnvVolatileEnabled, "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			err := Default().ApplyEnv()
			var ce *ConfigError
			if !errors.As(err, &ce) || ce.Field != tt.env {
				t.Errorf("got %v, want ConfigError for %s", err, tt.env)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"threshold high", func(c *Config) { c.Gate.ChangeThreshold = 101 }, "gate.change_threshold"},
		{"threshold negative", func(c *Config) { c.Gate.ChangeThreshold = -1 }, "gate.change_threshold"},
		{"interval", func(c *Config) { c.Gate.FrameIntervalMs = 0 }, "gate.frame_interval_ms"},
		{"policy", func(c *Config) { c.Gate.Policy.VolatileCooldown = -time.Second }, "gate.policy"},
		{"analyzer", func(c *Config) { c.Analyzer.ChunkSize = 0 }, "analyzer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			var ce *ConfigError
			if err := cfg.Validate(); !errors.As(err, &ce) || ce.Field != tt.field {
				t.Errorf("Validate() = %v, want ConfigError on %s", err, tt.field)
			}
		})
	}
}

func TestAddrAndOptions(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "127.0.0.1"
	if got := cfg.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
	if n := len(cfg.DetectorOptions()); n != 7 {
		t.Errorf("DetectorOptions() returned %d options", n)
	}
}

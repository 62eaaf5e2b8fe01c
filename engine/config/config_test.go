package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxelsim.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[compute]
pipeline = "expanded"
map_timeout = "500ms"

[compute.kernels]
automata = false

[grid]
texture_size = 256

[logging]
format = "json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Compute.Pipeline != "expanded" || cfg.Compute.MapTimeout != 500*time.Millisecond {
		t.Errorf("compute = %+v", cfg.Compute)
	}
	if cfg.Compute.Kernels.Automata || !cfg.Compute.Kernels.Physics {
		t.Errorf("kernels = %+v", cfg.Compute.Kernels)
	}
	if !cfg.Compute.ComputeEnabled {
		t.Error("compute_enabled lost its default")
	}
	if cfg.Grid.TextureSize != 256 || cfg.Grid.Levels != 4 {
		t.Errorf("grid = %+v", cfg.Grid)
	}
	if cfg.Capacity.PortalSlots != 32 || cfg.Logging.Format != "json" || cfg.Logging.Level != "info" {
		t.Errorf("capacity = %+v logging = %+v", cfg.Capacity, cfg.Logging)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
	if _, err := Load(writeConfig(t, "[grid\n")); err == nil {
		t.Error("malformed file accepted")
	}
	if _, err := Load(writeConfig(t, "[capacity]\nportal_slots = 3\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("odd portal slots err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown pipeline", func(c *Config) { c.Compute.Pipeline = "deferred" }},
		{"negative timeout", func(c *Config) { c.Compute.MapTimeout = -time.Second }},
		{"texture not power of two", func(c *Config) { c.Grid.TextureSize = 100 }},
		{"zero texture", func(c *Config) { c.Grid.TextureSize = 0 }},
		{"zero levels", func(c *Config) { c.Grid.Levels = 0 }},
		{"zero voxels per meter", func(c *Config) { c.Grid.VoxelsPerMeter = 0 }},
		{"zero decoration words", func(c *Config) { c.Capacity.DecorationWords = 0 }},
		{"negative physics words", func(c *Config) { c.Capacity.PhysicsWords = -1 }},
		{"odd portal slots", func(c *Config) { c.Capacity.PortalSlots = 7 }},
		{"negative frame limit", func(c *Config) { c.Engine.FrameLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "voxelsim.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Compute.Pipeline != "expanded" || cfg.Engine.Scene == "" {
		t.Errorf("compute = %+v engine = %+v", cfg.Compute, cfg.Engine)
	}
}

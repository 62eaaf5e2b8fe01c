// Package config loads the simulation's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalidConfig is returned by Validate for a configuration the simulation cannot run with.
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Compute  ComputeConfig  `toml:"compute"`
	Grid     GridConfig     `toml:"grid"`
	Capacity CapacityConfig `toml:"capacity"`
	Engine   EngineConfig   `toml:"engine"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ComputeConfig struct {
	ComputeEnabled bool          `toml:"compute_enabled"`
	Pipeline       string        `toml:"pipeline"` // "legacy" or "expanded"
	StrictMapping  bool          `toml:"strict_mapping"`
	MapTimeout     time.Duration `toml:"map_timeout"`
	Kernels        KernelsConfig `toml:"kernels"`
}

// KernelsConfig enables individual kernels, for diagnostics.
type KernelsConfig struct {
	Clear     bool `toml:"clear"`
	Automata  bool `toml:"automata"`
	Animation bool `toml:"animation"`
	Physics   bool `toml:"physics"`
	Rebuild   bool `toml:"rebuild"`
}

type GridConfig struct {
	TextureSize    uint32 `toml:"texture_size"` // power of two
	Levels         int    `toml:"levels"`
	VoxelsPerMeter uint32 `toml:"voxels_per_meter"`
}

type CapacityConfig struct {
	DecorationWords int `toml:"decoration_words"`
	PhysicsWords    int `toml:"physics_words"`
	PortalSlots     int `toml:"portal_slots"` // even
}

type EngineConfig struct {
	TickRate   float64 `toml:"tick_rate"`   // ticks per second
	FrameLimit float64 `toml:"frame_limit"` // frames per second, 0 = uncapped
	Profiling  bool    `toml:"profiling"`
	Scene      string  `toml:"scene"` // YAML scene fixture path
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads the TOML file at path over Defaults and validates the result.
//
// Parameters:
//   - path: the configuration file
//
// Returns:
//   - *Config: the configuration
//   - error: a read, parse or validation error
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Defaults returns the configuration used when no file overrides a value.
func Defaults() *Config {
	return &Config{
		Compute: ComputeConfig{
			ComputeEnabled: true,
			Pipeline:       "legacy",
			MapTimeout:     2 * time.Second,
			Kernels: KernelsConfig{
				Clear:     true,
				Automata:  true,
				Animation: true,
				Physics:   true,
				Rebuild:   true,
			},
		},
		Grid: GridConfig{
			TextureSize:    128,
			Levels:         4,
			VoxelsPerMeter: 4,
		},
		Capacity: CapacityConfig{
			DecorationWords: 1000000,
			PhysicsWords:    1024000,
			PortalSlots:     32,
		},
		Engine: EngineConfig{
			TickRate: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports every value the simulation cannot run with.
//
// Returns:
//   - error: ErrInvalidConfig wrapping each problem, or nil
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.Compute.Pipeline {
	case "legacy", "expanded":
	default:
		invalid("unknown pipeline %q", c.Compute.Pipeline)
	}
	if c.Compute.MapTimeout < 0 {
		invalid("negative map_timeout %s", c.Compute.MapTimeout)
	}
	if c.Grid.TextureSize == 0 || c.Grid.TextureSize&(c.Grid.TextureSize-1) != 0 {
		invalid("texture_size %d is not a power of two", c.Grid.TextureSize)
	}
	if c.Grid.Levels < 1 {
		invalid("levels %d", c.Grid.Levels)
	}
	if c.Grid.VoxelsPerMeter == 0 {
		invalid("voxels_per_meter is zero")
	}
	if c.Capacity.DecorationWords <= 0 {
		invalid("decoration_words %d", c.Capacity.DecorationWords)
	}
	if c.Capacity.PhysicsWords <= 0 {
		invalid("physics_words %d", c.Capacity.PhysicsWords)
	}
	if c.Capacity.PortalSlots <= 0 || c.Capacity.PortalSlots%2 != 0 {
		invalid("portal_slots %d must be positive and even", c.Capacity.PortalSlots)
	}
	if c.Engine.TickRate < 0 || c.Engine.FrameLimit < 0 {
		invalid("negative engine rate")
	}
	return errors.Join(errs...)
}

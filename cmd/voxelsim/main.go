// Command voxelsim runs the voxel compute simulation headless against a scene fixture.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Carmen-Shannon/oxy-voxel/common"
	"github.com/Carmen-Shannon/oxy-voxel/engine"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/scheduler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/config"
	"github.com/Carmen-Shannon/oxy-voxel/engine/loader"
	"github.com/Carmen-Shannon/oxy-voxel/engine/logging"
	"github.com/Carmen-Shannon/oxy-voxel/engine/profiler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "voxelsim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the TOML configuration, defaults apply when empty")
	scenePath := flag.String("scene", "", "YAML scene fixture, overrides engine.scene")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until interrupted")
	software := flag.Bool("software", false, "force a software adapter")
	flag.Parse()

	// 1. Configuration
	cfg := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// 2. Logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Device
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU,
		renderer.WithLogger(log),
		renderer.WithForceSoftwareRenderer(*software),
	)
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	defer r.Release()

	// 4. Simulation
	preset, err := compute.ParsePreset(cfg.Compute.Pipeline)
	if err != nil {
		return err
	}
	sim, err := compute.NewSimulation(r,
		compute.WithPreset(preset),
		compute.WithGrid(cfg.Grid.TextureSize, cfg.Grid.Levels),
		compute.WithVoxelsPerMeter(cfg.Grid.VoxelsPerMeter),
		compute.WithCapacity(cfg.Capacity.DecorationWords, cfg.Capacity.PhysicsWords),
		compute.WithPortalSlots(cfg.Capacity.PortalSlots),
		compute.WithStrictMapping(cfg.Compute.StrictMapping),
		compute.WithMapTimeout(cfg.Compute.MapTimeout),
		compute.WithComputeEnabled(cfg.Compute.ComputeEnabled),
		compute.WithKernels(kernelFlags(cfg.Compute.Kernels)),
		compute.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	defer sim.Release()
	if err := sim.Init(); err != nil {
		return err
	}

	// 5. Scene
	sc := scene.NewScene("voxelsim", scene.WithLogger(log))
	if path := common.Coalesce(*scenePath, cfg.Engine.Scene); path != "" {
		fixture, err := loader.NewLoader(loader.WithLogger(log)).Load(path)
		if err != nil {
			return err
		}
		ids := fixture.Populate(sc)
		log.Info("scene loaded", zap.String("path", path), zap.String("name", fixture.Name), zap.Int("entities", len(ids)))
	}

	// 6. Engine
	eng := engine.NewEngine(
		engine.WithSimulation(sim),
		engine.WithScene(sc),
		engine.WithTickRate(cfg.Engine.TickRate),
		engine.WithFrameLimit(cfg.Engine.FrameLimit),
		engine.WithProfiling(cfg.Engine.Profiling),
		engine.WithProfiler(profiler.NewProfiler(profiler.WithLogger(log))),
		engine.WithMaxFrames(*frames),
		engine.WithLogger(log),
	)
	return eng.Run(ctx)
}

func kernelFlags(k config.KernelsConfig) scheduler.Flags {
	var flags scheduler.Flags
	for _, kf := range []struct {
		on   bool
		flag scheduler.Flags
	}{
		{k.Clear, scheduler.FlagClear},
		{k.Automata, scheduler.FlagAutomata},
		{k.Animation, scheduler.FlagAnimation},
		{k.Physics, scheduler.FlagPhysics},
		{k.Rebuild, scheduler.FlagRebuild},
	} {
		if kf.on {
			flags |= kf.flag
		}
	}
	return flags
}

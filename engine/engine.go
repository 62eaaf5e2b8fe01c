// Package engine runs the voxel simulation: a fixed-rate tick loop for scene logic and a frame loop
// that steps the compute simulation as fast as the frame limit allows.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-voxel/engine/compute"
	"github.com/Carmen-Shannon/oxy-voxel/engine/profiler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/scene"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured is returned by Run when the engine has no simulation or scene.
	ErrNotConfigured = errors.New("engine: simulation and scene are required")

	// ErrAlreadyRunning is returned by Run while another Run is in progress.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrFramePanic is returned by Run when the frame goroutine recovered from a panic.
	ErrFramePanic = errors.New("engine: frame goroutine panicked")
)

// engine implements the Engine interface.
// Coordinates the tick and frame goroutines.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	simulation compute.Simulation
	scene      scene.Scene

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	frameCallback  func(report compute.Report)

	frameLimit atomic.Int64 // minimum frame duration in nanoseconds; 0 = uncapped
	maxFrames  uint64       // 0 = unbounded

	errMu sync.Mutex
	err   error

	logger *zap.Logger
}

// Engine is the main entry point for the engine.
// It orchestrates the tick loop and the simulation frame loop.
type Engine interface {
	// Simulation returns the compute simulation the frame loop steps.
	Simulation() compute.Simulation

	// Scene returns the simulated scene.
	Scene() scene.Scene

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for scene logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for scene logic such as spawning and despawning entities.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called after each simulation step.
	//
	// Parameters:
	//   - callback: function receiving the step's report
	SetFrameCallback(callback func(report compute.Report))

	// SetFrameLimit sets an optional frame rate cap in frames per second.
	// Pass 0 to uncap the frame loop (default).
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetFrameLimit(fps float64)

	// Run starts the tick and frame goroutines and blocks until ctx ends, Quit is called, the
	// WithMaxFrames count is reached, or a simulation step fails.
	//
	// Parameters:
	//   - ctx: the engine's lifetime
	//
	// Returns:
	//   - error: the step error or recovered panic that stopped the engine, or nil
	Run(ctx context.Context) error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (simulation, scene, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		logger:          zap.NewNop(),
	}

	for _, opt := range options {
		opt(e)
	}

	if e.profiler == nil {
		e.profiler = profiler.NewProfiler(profiler.WithLogger(e.logger))
	}

	return e
}

func (e *engine) Simulation() compute.Simulation {
	return e.simulation
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Run(ctx context.Context) error {
	if e.simulation == nil || e.scene == nil {
		return ErrNotConfigured
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.logger.Info("engine started", zap.String("scene", e.scene.Name()), zap.Duration("tick", e.engineTickRate))
	e.handle(ctx, cancel)
	e.wg.Wait()
	e.logger.Info("engine stopped")

	return e.Err()
}

// Err returns the error that stopped the engine, if any.
func (e *engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// fail records the first fatal error and signals quit.
func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	e.signalQuit()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handle launches the tick, frame, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle(ctx context.Context, cancel context.CancelFunc) {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleFrame(ctx)
	go e.handleQuit(ctx, cancel)
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleFrame steps the simulation until quit. A failed step or a panic stops the engine.
func (e *engine) handleFrame(ctx context.Context) {
	defer e.wg.Done()
	// Recover from panics inside the frame goroutine to avoid crashing the whole process.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("frame goroutine recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			e.fail(fmt.Errorf("%w: %v", ErrFramePanic, r))
		}
	}()

	start := time.Now()
	lastFrame := start
	var frames uint64

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := now.Sub(lastFrame)
		lastFrame = now

		report, err := e.simulation.Step(ctx, e.scene, now.Sub(start), dt)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("simulation step failed", zap.Uint64("frame", report.Frame), zap.Error(err))
			e.fail(err)
			return
		}
		if report.Transitioned {
			e.logger.Info("compute state", zap.Stringer("state", report.State), zap.Uint64("frame", report.Frame))
		}

		if e.frameCallback != nil {
			e.frameCallback(report)
		}

		if e.profilingEnabled.Load() {
			e.profiler.Observe(report)
			e.profiler.Tick()
		}

		frames++
		if e.maxFrames > 0 && frames >= e.maxFrames {
			e.logger.Info("frame count reached", zap.Uint64("frames", frames))
			e.signalQuit()
			return
		}

		// Frame rate limiting
		if limit := time.Duration(e.frameLimit.Load()); limit > 0 {
			if remaining := limit - time.Since(now); remaining > 0 {
				select {
				case <-e.quitChannel:
					return
				case <-time.After(remaining):
				}
			}
		}
	}
}

// handleQuit blocks until ctx ends or the quit channel is closed. Either one stops the other so
// an in-flight step waiting on the device is released.
func (e *engine) handleQuit(ctx context.Context, cancel context.CancelFunc) {
	defer e.wg.Done()
	select {
	case <-ctx.Done():
		e.signalQuit()
	case <-e.quitChannel:
		cancel()
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(report compute.Report)) {
	e.frameCallback = callback
}

// SetFrameLimit sets an optional frame rate cap.
// Pass 0 to uncap the frame loop.
func (e *engine) SetFrameLimit(fps float64) {
	e.frameLimit.Store(int64(frameDuration(fps)))
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

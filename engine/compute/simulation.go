// Package compute owns the per-frame compute state of the voxel simulation: the device buffers, the
// physics entity index, and the extractors and scheduler that fill and drive them. One Simulation
// runs one frame at a time through Step.
package compute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/extractor"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/grid"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/readback"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/scheduler"
	"github.com/Carmen-Shannon/oxy-voxel/engine/compute/tagged_buffer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-voxel/engine/renderer/shader"
	"go.uber.org/zap"
)

// Device buffer keys.
const (
	BufferUniform         = "uniform"
	BufferPhysics         = "physics"
	BufferPhysicsReadback = "physics_readback"
	BufferAnimation       = "animation"
	BufferGridStorage     = "gh_storage"
	BufferPortals         = "portals"
)

var (
	// ErrNotInitialized is returned by Step before Init has succeeded.
	ErrNotInitialized = errors.New("compute: simulation not initialized")

	// ErrUnknownPreset is returned when a pipeline preset name is not recognized.
	ErrUnknownPreset = errors.New("compute: unknown pipeline preset")
)

// Preset selects the chain of kernels a simulation dispatches.
type Preset string

const (
	// PresetLegacy is the per-view chain: update, update_physics, update_animation, rebuild_gh.
	PresetLegacy Preset = "legacy"

	// PresetExpanded runs clear, automata and animation once per frame ahead of the legacy chain.
	PresetExpanded Preset = "expanded"
)

// ParsePreset returns the preset named name. An empty name is PresetLegacy.
func ParsePreset(name string) (Preset, error) {
	switch Preset(name) {
	case "", PresetLegacy:
		return PresetLegacy, nil
	case PresetExpanded:
		return PresetExpanded, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}

// Scene is the live scene state a simulation reads and writes back into.
type Scene interface {
	extractor.DecorationSource
	extractor.BodyStore
}

// Report describes one simulation step.
type Report struct {
	scheduler.Report
	DecorationRecords  int
	DecorationRejected int
	PhysicsRecords     int
	PhysicsRejected    int
	PortalPairs        int
	PortalsDropped     int
	// Reconciled counts the previous frame's physics results applied this step.
	Reconciled readback.Stats
	Took       time.Duration
}

// Simulation is the compute context of the voxel world. It owns every device buffer the kernels
// bind, the grid hierarchy sizing, and the entity index that maps physics results back onto the
// scene one frame later.
type Simulation interface {
	// Init creates the device buffers and grid texture and queues the preset's pipelines for
	// compilation. It must succeed once before Step.
	//
	// Returns:
	//   - error: an error if the device rejected the resources
	Init() error

	// Step runs one frame: it applies the previous frame's physics results to sc, extracts the
	// current scene into the decoration and physics buffers, uploads them, and dispatches the
	// kernel chain when the scheduler allows it.
	//
	// Parameters:
	//   - ctx: bounds the wait for the previous frame's readback
	//   - sc: the scene to simulate
	//   - elapsed: time since the simulation started
	//   - dt: time since the previous step
	//
	// Returns:
	//   - Report: what the step did
	//   - error: an error if the readback, upload, or any dispatch failed
	Step(ctx context.Context, sc Scene, elapsed, dt time.Duration) (Report, error)

	// State returns the scheduler's readiness state.
	State() scheduler.State

	// Sizing returns the grid hierarchy sizing the buffers were created with.
	Sizing() grid.Sizing

	// SetComputeEnabled toggles dispatch. The scheduler keeps its state while disabled.
	SetComputeEnabled(enabled bool)

	// SetKernels replaces the per-kernel enable flags.
	SetKernels(flags scheduler.Flags)

	// Release stops the extraction workers. The renderer is not released.
	Release()
}

// simulation is the implementation of the Simulation interface.
type simulation struct {
	mu sync.Mutex

	renderer   renderer.Renderer
	hierarchy  grid.Hierarchy
	decoration extractor.DecorationExtractor
	physics    extractor.PhysicsExtractor
	mapper     readback.Mapper
	scheduler  scheduler.Scheduler
	pool       worker.DynamicWorkerPool

	preset          Preset
	textureSize     uint32
	levels          int
	voxelsPerMeter  uint32
	decorationWords int
	physicsWords    int
	portalSlots     int
	strictMapping   bool
	mapTimeout      time.Duration
	computeEnabled  bool
	kernels         scheduler.Flags

	initialized       bool
	frame             uint64
	physicsDispatched bool
	gridZero          []byte
	logger            *zap.Logger
}

var _ Simulation = &simulation{}

// NewSimulation creates a Simulation on r. The grid hierarchy is sized here; device resources are
// created by Init.
//
// Parameters:
//   - r: the renderer owning the device
//   - options: functional options to configure the simulation
//
// Returns:
//   - Simulation: the simulation
//   - error: an error if the grid or preset configuration is invalid
func NewSimulation(r renderer.Renderer, options ...SimulationBuilderOption) (Simulation, error) {
	s := &simulation{
		renderer:        r,
		preset:          PresetLegacy,
		textureSize:     128,
		levels:          4,
		voxelsPerMeter:  extractor.DefaultVoxelsPerMeter,
		decorationWords: extractor.DefaultDecorationWords,
		physicsWords:    extractor.DefaultPhysicsWords,
		portalSlots:     extractor.DefaultPortalSlots,
		mapTimeout:      readback.DefaultTimeout,
		computeEnabled:  true,
		kernels:         scheduler.AllKernels,
		logger:          zap.NewNop(),
	}

	for _, option := range options {
		option(s)
	}

	if _, err := ParsePreset(string(s.preset)); err != nil {
		return nil, err
	}

	hierarchy, err := grid.NewHierarchy(s.textureSize, s.levels, grid.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.hierarchy = hierarchy

	s.mapper = readback.NewMapper(r,
		readback.WithStrict(s.strictMapping),
		readback.WithTimeout(s.mapTimeout),
		readback.WithLogger(s.logger),
	)
	s.decoration = extractor.NewDecorationExtractor(
		extractor.WithDecorationCapacity(s.decorationWords),
		extractor.WithPortalSlots(s.portalSlots),
		extractor.WithVoxelsPerMeter(s.voxelsPerMeter),
		extractor.WithDecorationLogger(s.logger),
	)
	s.physics = extractor.NewPhysicsExtractor(s.mapper, BufferPhysicsReadback,
		extractor.WithPhysicsCapacity(s.physicsWords),
		extractor.WithPhysicsLogger(s.logger),
	)

	var stages []scheduler.Stage
	switch s.preset {
	case PresetExpanded:
		stages = scheduler.ExpandedStages(BufferPhysics, BufferPhysicsReadback)
	default:
		stages = scheduler.LegacyStages(BufferPhysics, BufferPhysicsReadback)
	}
	s.scheduler = scheduler.New(stages, r, scheduler.WithLogger(s.logger))

	s.pool = worker.NewDynamicWorkerPool(1, 4, 1*time.Second)
	return s, nil
}

func (s *simulation) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	kernels, err := shader.VoxelCompute()
	if err != nil {
		return fmt.Errorf("failed to load compute kernels: %w", err)
	}

	sizing := s.hierarchy.Sizing()
	desc := renderer.ResourcesDescriptor{
		Layout: kernels.BindGroupLayoutDescriptor(0),
		Buffers: []renderer.BufferDescriptor{
			{Key: BufferUniform, Kind: renderer.BufferKindUniform, Size: uniformsSize, Binding: shader.BindingUniforms},
			{Key: BufferPhysics, Kind: renderer.BufferKindStorage, Size: uint64(s.physicsWords) * 4, Binding: shader.BindingPhysics},
			{Key: BufferPhysicsReadback, Kind: renderer.BufferKindReadback, Size: uint64(s.physicsWords) * 4, Binding: -1},
			{Key: BufferAnimation, Kind: renderer.BufferKindStorage, Size: uint64(s.decorationWords) * 4, Binding: shader.BindingAnimation},
			{Key: BufferGridStorage, Kind: renderer.BufferKindStorage, Size: sizing.StorageByteLength, Binding: shader.BindingGridHierarchy},
			{Key: BufferPortals, Kind: renderer.BufferKindUniform, Size: uint64(s.portalSlots) * portalSize, Binding: -1},
		},
		GridTextureSize:    sizing.TextureSize,
		GridTextureBinding: shader.BindingGridTexture,
	}
	if err := s.renderer.InitResources(desc); err != nil {
		return fmt.Errorf("failed to create simulation resources: %w", err)
	}

	var pipelines []pipeline.Pipeline
	for _, st := range s.scheduler.Stages() {
		p, err := pipeline.NewPipeline(string(st.Kernel), kernels, string(st.Kernel), pipeline.WithLabel(st.Name))
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}
	s.renderer.RegisterPipelines(pipelines...)

	s.gridZero = make([]byte, sizing.StorageByteLength)
	s.initialized = true
	s.logger.Info("simulation initialized",
		zap.String("preset", string(s.preset)),
		zap.Uint32("grid_size", sizing.TextureSize),
		zap.Int("levels", sizing.Levels),
		zap.Uint64("grid_storage_bytes", sizing.StorageByteLength),
		zap.Int("pipelines", len(pipelines)),
	)
	return nil
}

func (s *simulation) Step(ctx context.Context, sc Scene, elapsed, dt time.Duration) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return Report{}, ErrNotInitialized
	}
	start := time.Now()
	s.frame++
	sizing := s.hierarchy.Sizing()

	// Results are applied before either extractor reads the scene, so both buffers see the same state.
	phys, err := s.physics.Step(ctx, sc, s.physicsDispatched)
	if err != nil {
		s.physicsDispatched = false
		return Report{}, fmt.Errorf("frame %d: %w", s.frame, err)
	}

	var (
		deco      extractor.DecorationFrame
		decoBytes []byte
		wg        sync.WaitGroup
	)
	wg.Add(1)
	s.pool.SubmitTask(worker.Task{
		ID:      int(s.frame),
		Payload: "decoration",
		Do: func() (any, error) {
			defer wg.Done()
			deco = s.decoration.Extract(sc, sizing)
			decoBytes = tagged_buffer.WordsToBytes(deco.Words)
			return nil, nil
		},
	})
	physBytes := tagged_buffer.WordsToBytes(phys.Words)
	wg.Wait()

	uniforms := ComputeUniforms{
		Time:      float32(elapsed.Seconds()),
		DeltaTime: float32(dt.Seconds()),
	}
	frame := scheduler.Frame{
		Number:           s.frame,
		ComputeEnabled:   s.computeEnabled,
		Kernels:          s.kernels,
		GridSize:         sizing.TextureSize,
		PhysicsRecords:   phys.Records,
		PhysicsBytes:     uint64(len(physBytes)),
		AnimationRecords: deco.Records,
		Uploads: []bind_group_provider.BufferWrite{
			{Key: BufferUniform, Data: uniforms.Marshal()},
			{Key: BufferPhysics, Data: physBytes},
			{Key: BufferAnimation, Data: decoBytes},
			{Key: BufferGridStorage, Data: s.gridZero},
			{Key: BufferPortals, Data: deco.Portals.Marshal()},
		},
	}

	sr, err := s.scheduler.RunFrame(frame)
	s.physicsDispatched = err == nil && sr.Ran(scheduler.KernelUpdatePhysics)

	report := Report{
		Report:             sr,
		DecorationRecords:  deco.Records,
		DecorationRejected: deco.Rejected,
		PhysicsRecords:     phys.Records,
		PhysicsRejected:    phys.Rejected,
		PortalPairs:        deco.Portals.Pairs,
		PortalsDropped:     deco.Portals.Dropped,
		Reconciled:         phys.Reconciled,
		Took:               time.Since(start),
	}
	if err != nil {
		return report, fmt.Errorf("frame %d: %w", s.frame, err)
	}
	return report, nil
}

func (s *simulation) State() scheduler.State {
	return s.scheduler.State()
}

func (s *simulation) Sizing() grid.Sizing {
	return s.hierarchy.Sizing()
}

func (s *simulation) SetComputeEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computeEnabled = enabled
}

func (s *simulation) SetKernels(flags scheduler.Flags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kernels = flags
}

func (s *simulation) Release() {
	s.pool.Stop()
}
